package prepare

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"lphedge/internal/breaker"
	"lphedge/internal/coretypes"
	"lphedge/internal/pool"
	"lphedge/internal/store"
	"lphedge/internal/venue"
)

func testBreaker(name string) *breaker.Breaker {
	return breaker.New(name, 100, time.Minute, 1)
}

type fakeVenue struct {
	prices      map[coretypes.Symbol]float64
	positions   map[coretypes.Symbol]float64
	priceErr    map[coretypes.Symbol]error
	positionErr map[coretypes.Symbol]error
}

func (f *fakeVenue) GetPrice(ctx context.Context, symbol coretypes.Symbol) (float64, error) {
	if err := f.priceErr[symbol]; err != nil {
		return 0, err
	}
	return f.prices[symbol], nil
}

func (f *fakeVenue) GetPosition(ctx context.Context, symbol coretypes.Symbol) (float64, error) {
	if err := f.positionErr[symbol]; err != nil {
		return 0, err
	}
	return f.positions[symbol], nil
}

func (f *fakeVenue) PlaceLimitOrder(ctx context.Context, symbol coretypes.Symbol, side coretypes.Side, size, price float64, idempotencyKey string) (string, error) {
	return "", nil
}
func (f *fakeVenue) PlaceMarketOrder(ctx context.Context, symbol coretypes.Symbol, side coretypes.Side, size float64, idempotencyKey string) (string, error) {
	return "", nil
}
func (f *fakeVenue) CancelAllOrders(ctx context.Context, symbol coretypes.Symbol) (int, error) {
	return 0, nil
}
func (f *fakeVenue) ListOpenOrders(ctx context.Context, symbol coretypes.Symbol) ([]venue.Order, error) {
	return nil, nil
}
func (f *fakeVenue) ListRecentFills(ctx context.Context, symbol coretypes.Symbol, window time.Duration) ([]venue.Fill, error) {
	return nil, nil
}
func (f *fakeVenue) GetOrderStatus(ctx context.Context, orderID string) (venue.OrderStatus, error) {
	return "", nil
}

type fakeReader struct {
	name      string
	positions map[string]float64
	err       error
}

func (f *fakeReader) Name() string { return f.name }
func (f *fakeReader) FetchIdealPositions(ctx context.Context, lpAmount float64) (map[string]float64, error) {
	return f.positions, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPreparer_Run_HappyPath(t *testing.T) {
	t.Parallel()
	v := &fakeVenue{
		prices:    map[coretypes.Symbol]float64{"SOL": 150},
		positions: map[coretypes.Symbol]float64{"SOL": 50},
	}
	pools := []pool.Enabled{{Reader: &fakeReader{name: "jlp", positions: map[string]float64{"SOL": 100}}, Amount: 1}}
	p := New(v, store.New(), pools, nil, Thresholds{MinUSD: 5, MaxUSD: 20, StepUSD: 2.5}, nil, nil, testBreaker("venue"), testBreaker("pool"), testLogger())

	data, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(data.Symbols) != 1 {
		t.Fatalf("len(Symbols) = %d, want 1", len(data.Symbols))
	}
	sd := data.BySymbol["SOL"]
	if sd.IdealHedge != -100 {
		t.Errorf("IdealHedge = %v, want -100 (pool long -> short hedge)", sd.IdealHedge)
	}
	if sd.Position != 50 {
		t.Errorf("Position = %v, want 50", sd.Position)
	}
}

func TestPreparer_Run_PriceFailureAbortsCycle(t *testing.T) {
	t.Parallel()
	v := &fakeVenue{
		prices:   map[coretypes.Symbol]float64{},
		priceErr: map[coretypes.Symbol]error{"SOL": errors.New("timeout")},
	}
	pools := []pool.Enabled{{Reader: &fakeReader{name: "jlp", positions: map[string]float64{"SOL": 100}}, Amount: 1}}
	p := New(v, store.New(), pools, nil, Thresholds{MinUSD: 5, MaxUSD: 20, StepUSD: 2.5}, nil, nil, testBreaker("venue"), testBreaker("pool"), testLogger())

	_, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want error on price fetch failure")
	}
}

func TestPreparer_Run_PositionFailureDegradesToZero(t *testing.T) {
	t.Parallel()
	v := &fakeVenue{
		prices:      map[coretypes.Symbol]float64{"SOL": 150},
		positionErr: map[coretypes.Symbol]error{"SOL": errors.New("flaky")},
	}
	pools := []pool.Enabled{{Reader: &fakeReader{name: "jlp", positions: map[string]float64{"SOL": 100}}, Amount: 1}}
	p := New(v, store.New(), pools, nil, Thresholds{MinUSD: 5, MaxUSD: 20, StepUSD: 2.5}, nil, nil, testBreaker("venue"), testBreaker("pool"), testLogger())

	data, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil (position failure should not abort)", err)
	}
	if data.BySymbol["SOL"].Position != 0 {
		t.Errorf("Position = %v, want 0 after fetch failure", data.BySymbol["SOL"].Position)
	}
}

func TestPreparer_PredefinedOffsetDoesNotAffectStoredCostBasis(t *testing.T) {
	t.Parallel()
	v := &fakeVenue{
		prices:    map[coretypes.Symbol]float64{"SOL": 100},
		positions: map[coretypes.Symbol]float64{"SOL": 0},
	}
	pools := []pool.Enabled{{Reader: &fakeReader{name: "jlp", positions: map[string]float64{"SOL": 10}}, Amount: 1}}
	st := store.New()
	predefined := map[string]float64{"SOL": 5}
	p := New(v, st, pools, nil, Thresholds{MinUSD: 5, MaxUSD: 20, StepUSD: 2.5}, nil, predefined, testBreaker("venue"), testBreaker("pool"), testLogger())

	data, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sd := data.BySymbol["SOL"]
	// ideal hedge is -10 vs 0 position: raw offset == actual-ideal == 10,
	// adjusted offset == 10 - 5 == 5; first build sets cost basis to price 100
	if sd.CostBasis == 0 && sd.Offset == 0 {
		t.Fatal("expected nonzero offset/cost")
	}
	stored := st.Get("SOL")
	if stored.CostBasis != 100 || sd.CostBasis != stored.CostBasis {
		t.Errorf("cost basis: stored=%v prepared=%v, want both 100", stored.CostBasis, sd.CostBasis)
	}
	if stored.Offset == sd.Offset {
		t.Errorf("stored raw offset %v should differ from predefined-adjusted offset %v", stored.Offset, sd.Offset)
	}
	if stored.Offset-predefined["SOL"] != sd.Offset {
		t.Errorf("adjusted offset mismatch: stored=%v predefined=%v adjusted=%v", stored.Offset, predefined["SOL"], sd.Offset)
	}
}

func TestPreparer_Run_AbortsWhenVenueBreakerOpen(t *testing.T) {
	t.Parallel()
	v := &fakeVenue{
		prices:    map[coretypes.Symbol]float64{"SOL": 150},
		positions: map[coretypes.Symbol]float64{"SOL": 50},
	}
	pools := []pool.Enabled{{Reader: &fakeReader{name: "jlp", positions: map[string]float64{"SOL": 100}}, Amount: 1}}
	vb := breaker.New("venue", 1, time.Minute, 1)
	vb.RecordFailure() // trips open on the first failure
	p := New(v, store.New(), pools, nil, Thresholds{MinUSD: 5, MaxUSD: 20, StepUSD: 2.5}, nil, nil, vb, testBreaker("pool"), testLogger())

	_, err := p.Run(context.Background())
	var openErr *breaker.OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Run() error = %v, want *breaker.OpenError", err)
	}
}

func TestPreparer_AliasNormalization(t *testing.T) {
	t.Parallel()
	v := &fakeVenue{
		prices:    map[coretypes.Symbol]float64{"BTC": 65000},
		positions: map[coretypes.Symbol]float64{"BTC": 0},
	}
	pools := []pool.Enabled{{Reader: &fakeReader{name: "jlp", positions: map[string]float64{"WBTC": 1}}, Amount: 1}}
	aliases := map[string]string{"WBTC": "BTC"}
	p := New(v, store.New(), pools, aliases, Thresholds{MinUSD: 5, MaxUSD: 20, StepUSD: 2.5}, nil, nil, testBreaker("venue"), testBreaker("pool"), testLogger())

	data, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := data.BySymbol["BTC"]; !ok {
		t.Fatal("expected BTC symbol after WBTC alias normalization")
	}
}
