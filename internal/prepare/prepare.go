// Package prepare implements the Preparer: pool aggregation, concurrent
// per-symbol venue reads, OffsetTracker application, and zone
// classification — everything the Decider needs before it can run.
package prepare

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"lphedge/internal/breaker"
	"lphedge/internal/coretypes"
	"lphedge/internal/offset"
	"lphedge/internal/pool"
	"lphedge/internal/store"
	"lphedge/internal/venue"
	"lphedge/internal/zone"
)

// SymbolData is one symbol's fully prepared snapshot for this cycle.
type SymbolData struct {
	Symbol     coretypes.Symbol
	IdealHedge float64
	Position   float64
	Price      float64
	Offset     float64 // after predefined_offset adjustment; used for zone/decide
	CostBasis  float64
	OffsetUSD  float64
	Zone       coretypes.Zone
	State      coretypes.SymbolState // state as committed to the store this cycle
}

// Data is the PreparedData snapshot consumed by Decider and Report.
type Data struct {
	Symbols  []coretypes.Symbol
	BySymbol map[coretypes.Symbol]SymbolData
}

// Thresholds mirrors config.ThresholdConfig to keep this package
// independent of the config package's mapstructure tags.
type Thresholds struct {
	MinUSD  float64
	MaxUSD  float64
	StepUSD float64
}

// Preparer orchestrates one cycle's data-gathering phase.
type Preparer struct {
	venue      venue.Adapter
	store      *store.Store
	pools      []pool.Enabled
	aliases    map[string]string
	thresholds Thresholds

	venueBreaker *breaker.Breaker
	poolBreaker  *breaker.Breaker

	initialOffset    map[string]float64
	predefinedOffset map[string]float64

	logger *slog.Logger
}

// New creates a Preparer. venueBreaker and poolBreaker gate every venue
// and pool call this phase makes, one instance per collaborator class
// shared with whichever other package also calls that collaborator.
func New(adapter venue.Adapter, st *store.Store, pools []pool.Enabled, aliases map[string]string, thresholds Thresholds, initialOffset, predefinedOffset map[string]float64, venueBreaker, poolBreaker *breaker.Breaker, logger *slog.Logger) *Preparer {
	return &Preparer{
		venue:            adapter,
		store:            st,
		pools:            pools,
		aliases:          aliases,
		thresholds:       thresholds,
		venueBreaker:     venueBreaker,
		poolBreaker:      poolBreaker,
		initialOffset:    initialOffset,
		predefinedOffset: predefinedOffset,
		logger:           logger.With("component", "prepare"),
	}
}

// Run executes the Prepare phase. A price-fetch failure for any symbol
// aborts the whole cycle per spec.md §4.6; a position-fetch failure
// for a symbol degrades that symbol's position to 0 and continues.
func (p *Preparer) Run(ctx context.Context) (Data, error) {
	idealHedges, err := pool.Aggregate(ctx, p.pools, p.aliases, p.poolBreaker)
	if err != nil {
		return Data{}, fmt.Errorf("aggregate pools: %w", err)
	}

	symbols := make([]coretypes.Symbol, 0, len(idealHedges))
	for symbol := range idealHedges {
		symbols = append(symbols, symbol)
	}

	prices, positions, err := p.fetchMarketData(ctx, symbols)
	if err != nil {
		return Data{}, err
	}

	bySymbol := make(map[coretypes.Symbol]SymbolData, len(symbols))
	for _, symbol := range symbols {
		data := p.prepareSymbol(symbol, idealHedges[symbol], positions[symbol], prices[symbol])
		bySymbol[symbol] = data
	}

	return Data{Symbols: symbols, BySymbol: bySymbol}, nil
}

// fetchMarketData concurrently fetches price and position for every
// symbol. Any price error aborts via errgroup's first-error cancellation;
// position errors are logged and treated as a zero position.
func (p *Preparer) fetchMarketData(ctx context.Context, symbols []coretypes.Symbol) (prices, positions map[coretypes.Symbol]float64, err error) {
	prices = make(map[coretypes.Symbol]float64, len(symbols))
	positions = make(map[coretypes.Symbol]float64, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if err := p.venueBreaker.Allow(); err != nil {
				return fmt.Errorf("get price for %s: %w", symbol, err)
			}
			price, err := p.venue.GetPrice(gctx, symbol)
			if err != nil {
				p.venueBreaker.RecordFailure()
				return fmt.Errorf("get price for %s: %w", symbol, err)
			}
			p.venueBreaker.RecordSuccess()
			prices[symbol] = price
			return nil
		})
		g.Go(func() error {
			if err := p.venueBreaker.Allow(); err != nil {
				p.logger.Warn("position fetch breaker open, treating as zero", "symbol", symbol, "error", err)
				positions[symbol] = p.initialOffset[string(symbol)]
				return nil
			}
			position, err := p.venue.GetPosition(gctx, symbol)
			if err != nil {
				p.venueBreaker.RecordFailure()
				p.logger.Warn("position fetch failed, treating as zero", "symbol", symbol, "error", err)
				position = 0
			} else {
				p.venueBreaker.RecordSuccess()
			}
			positions[symbol] = position + p.initialOffset[string(symbol)]
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return prices, positions, nil
}

// prepareSymbol runs OffsetTracker against the prior state, commits
// the raw (offset, cost_basis) to the store, then applies the
// predefined_offset correction to the offset used for zone
// classification and by the Decider — the correction never touches
// cost basis or the stored offset, so next
// cycle's continuity is unaffected by it.
func (p *Preparer) prepareSymbol(symbol coretypes.Symbol, idealHedge, position, price float64) SymbolData {
	prior := p.store.Get(symbol)

	rawOffset, cost, err := offset.Update(idealHedge, position, price, prior.Offset, prior.CostBasis)
	if err != nil {
		p.logger.Error("offset update failed, retaining prior state", "symbol", symbol, "error", err)
		rawOffset, cost = prior.Offset, prior.CostBasis
	}

	state := p.store.Update(symbol, func(s coretypes.SymbolState) coretypes.SymbolState {
		s.Offset = rawOffset
		s.CostBasis = cost
		return s
	})

	adjustedOffset := rawOffset - p.predefinedOffset[string(symbol)]
	offsetUSD := adjustedOffset * price
	z := zone.Classify(offsetUSD, p.thresholds.MinUSD, p.thresholds.MaxUSD, p.thresholds.StepUSD)

	return SymbolData{
		Symbol:     symbol,
		IdealHedge: idealHedge,
		Position:   position,
		Price:      price,
		Offset:     adjustedOffset,
		CostBasis:  cost,
		OffsetUSD:  offsetUSD,
		Zone:       z,
		State:      state,
	}
}
