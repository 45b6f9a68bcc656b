package decide

import (
	"testing"
	"time"

	"lphedge/internal/coretypes"
	"lphedge/internal/zone"
)

var scenarioCfg = Config{
	CloseRatio:          40,
	OrderPriceOffsetPct: 0.2,
	Timeout:             20 * time.Minute,
	CooldownAfterFill:   5 * time.Minute,
}

const (
	thMin  = 5.0
	thMax  = 20.0
	thStep = 2.5
)

func classify(offsetUSD float64) coretypes.Zone {
	return zone.Classify(offsetUSD, thMin, thMax, thStep)
}

// S1: first entry into zone.
func TestDecide_S1_FirstEntry(t *testing.T) {
	t.Parallel()
	now := time.Now()
	offset := 0.10
	price := 100.0
	offsetUSD := offset * price // 10
	z := classify(offsetUSD)    // bucket 2

	actions := Decide(Params{
		Symbol:    "SOL",
		Offset:    offset,
		CostBasis: 100,
		Price:     price,
		OffsetUSD: offsetUSD,
		Zone:      z,
		State:     coretypes.ZeroSymbolState,
		Now:       now,
	}, scenarioCfg)

	if len(actions) != 1 {
		t.Fatalf("want 1 action, got %d: %+v", len(actions), actions)
	}
	pl, ok := actions[0].(coretypes.PlaceLimitAction)
	if !ok {
		t.Fatalf("want PlaceLimitAction, got %T", actions[0])
	}
	if pl.Side != coretypes.Sell {
		t.Errorf("side = %v, want Sell", pl.Side)
	}
	if diff := pl.Size - 0.04; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("size = %v, want 0.04", pl.Size)
	}
	if diff := pl.Price - 100.20; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("price = %v, want 100.20", pl.Price)
	}
	if b, _ := pl.Zone.Bucket(); b != 2 {
		t.Errorf("zone bucket = %d, want 2", b)
	}
}

// S2: deadband.
func TestDecide_S2_Deadband(t *testing.T) {
	t.Parallel()
	offset := 0.10 - 0.11 // ideal=-0.10, actual=-0.11 -> offset = -0.01... but spec gives offset_usd=1 directly
	_ = offset
	offsetUSD := 1.0
	z := classify(offsetUSD)

	actions := Decide(Params{
		Symbol:    "SOL",
		Offset:    -0.01,
		CostBasis: 0,
		Price:     100,
		OffsetUSD: offsetUSD,
		Zone:      z,
		State:     coretypes.ZeroSymbolState,
		Now:       time.Now(),
	}, scenarioCfg)

	if len(actions) != 1 {
		t.Fatalf("want 1 action, got %d: %+v", len(actions), actions)
	}
	if _, ok := actions[0].(coretypes.NoActionAction); !ok {
		t.Fatalf("want NoActionAction, got %T", actions[0])
	}
}

// S3: timeout forces market close.
func TestDecide_S3_Timeout(t *testing.T) {
	t.Parallel()
	now := time.Now()
	z1 := coretypes.ZoneBucket(1)
	state := coretypes.SymbolState{
		Offset:    0.10,
		CostBasis: 100,
		Monitoring: coretypes.Monitoring{
			Active:      true,
			OrderID:     "order-1",
			CurrentZone: &z1,
			StartedAt:   now.Add(-21 * time.Minute),
		},
	}
	offset := 0.10
	price := 100.0
	offsetUSD := offset * price
	z := classify(offsetUSD) // bucket 2

	actions := Decide(Params{
		Symbol:    "SOL",
		Offset:    offset,
		CostBasis: 100,
		Price:     price,
		OffsetUSD: offsetUSD,
		Zone:      z,
		State:     state,
		Now:       now,
	}, scenarioCfg)

	if len(actions) != 2 {
		t.Fatalf("want 2 actions, got %d: %+v", len(actions), actions)
	}
	if _, ok := actions[0].(coretypes.CancelAction); !ok {
		t.Fatalf("action[0] = %T, want CancelAction", actions[0])
	}
	pm, ok := actions[1].(coretypes.PlaceMarketAction)
	if !ok {
		t.Fatalf("action[1] = %T, want PlaceMarketAction", actions[1])
	}
	if !pm.ForceClose {
		t.Error("want ForceClose = true")
	}
	if diff := pm.Size - 0.10; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("size = %v, want 0.10", pm.Size)
	}
}

// S4: breach alerts.
func TestDecide_S4_Breach(t *testing.T) {
	t.Parallel()
	offset := 0.15
	price := 100.0
	offsetUSD := 25.0
	z := classify(offsetUSD)
	if !z.IsBreach() {
		t.Fatalf("fixture error: expected breach zone")
	}

	actions := Decide(Params{
		Symbol:    "SOL",
		Offset:    offset,
		CostBasis: 100,
		Price:     price,
		OffsetUSD: offsetUSD,
		Zone:      z,
		State:     coretypes.ZeroSymbolState,
		Now:       time.Now(),
	}, scenarioCfg)

	if len(actions) != 1 {
		t.Fatalf("want 1 action (no tracked order), got %d: %+v", len(actions), actions)
	}
	if _, ok := actions[0].(coretypes.AlertAction); !ok {
		t.Fatalf("action[0] = %T, want AlertAction", actions[0])
	}
}

// S5: cooldown, zone improved -> NoAction.
func TestDecide_S5_CooldownImproved(t *testing.T) {
	t.Parallel()
	now := time.Now()
	z3 := coretypes.ZoneBucket(3)
	state := coretypes.SymbolState{
		LastFillTime: now.Add(-2 * time.Minute),
		Monitoring: coretypes.Monitoring{
			CurrentZone: &z3,
		},
	}
	newZone := coretypes.ZoneBucket(1)

	actions := Decide(Params{
		Symbol:    "SOL",
		Offset:    0.05,
		CostBasis: 100,
		Price:     100,
		OffsetUSD: 8,
		Zone:      newZone,
		State:     state,
		Now:       now,
	}, scenarioCfg)

	if len(actions) != 1 {
		t.Fatalf("want 1 action, got %d: %+v", len(actions), actions)
	}
	if _, ok := actions[0].(coretypes.NoActionAction); !ok {
		t.Fatalf("action[0] = %T, want NoActionAction", actions[0])
	}
}

// S6: cooldown, zone worsened -> Cancel + PlaceLimit(in_cooldown).
func TestDecide_S6_CooldownWorsened(t *testing.T) {
	t.Parallel()
	now := time.Now()
	z1 := coretypes.ZoneBucket(1)
	state := coretypes.SymbolState{
		LastFillTime: now.Add(-2 * time.Minute),
		Monitoring: coretypes.Monitoring{
			CurrentZone: &z1,
			OrderID:     "order-1",
		},
	}
	newZone := coretypes.ZoneBucket(3)

	actions := Decide(Params{
		Symbol:    "SOL",
		Offset:    0.15,
		CostBasis: 100,
		Price:     100,
		OffsetUSD: 15,
		Zone:      newZone,
		State:     state,
		Now:       now,
	}, scenarioCfg)

	if len(actions) != 2 {
		t.Fatalf("want 2 actions, got %d: %+v", len(actions), actions)
	}
	if _, ok := actions[0].(coretypes.CancelAction); !ok {
		t.Fatalf("action[0] = %T, want CancelAction", actions[0])
	}
	pl, ok := actions[1].(coretypes.PlaceLimitAction)
	if !ok {
		t.Fatalf("action[1] = %T, want PlaceLimitAction", actions[1])
	}
	if !pl.InCooldown {
		t.Error("want InCooldown = true")
	}
	if b, _ := pl.Zone.Bucket(); b != 3 {
		t.Errorf("zone bucket = %d, want 3", b)
	}
}

// R4: no change when zone matches stored current_zone and no cooldown interference.
func TestDecide_R4_NoChange(t *testing.T) {
	t.Parallel()
	now := time.Now()
	z2 := coretypes.ZoneBucket(2)
	state := coretypes.SymbolState{
		Monitoring: coretypes.Monitoring{
			Active:      true,
			OrderID:     "order-1",
			CurrentZone: &z2,
			StartedAt:   now.Add(-1 * time.Minute),
		},
	}

	actions := Decide(Params{
		Symbol:    "SOL",
		Offset:    0.10,
		CostBasis: 100,
		Price:     100,
		OffsetUSD: 10,
		Zone:      coretypes.ZoneBucket(2),
		State:     state,
		Now:       now,
	}, scenarioCfg)

	if len(actions) != 1 {
		t.Fatalf("want 1 action, got %d: %+v", len(actions), actions)
	}
	if _, ok := actions[0].(coretypes.NoActionAction); !ok {
		t.Fatalf("action[0] = %T, want NoActionAction", actions[0])
	}
}

// Not-in-cooldown zone change, no tracked order: Cancel must be absent.
func TestDecide_ZoneChange_NoTrackedOrder_NoCancel(t *testing.T) {
	t.Parallel()
	now := time.Now()
	z1 := coretypes.ZoneBucket(1)
	state := coretypes.SymbolState{
		Monitoring: coretypes.Monitoring{CurrentZone: &z1},
	}

	actions := Decide(Params{
		Symbol:    "SOL",
		Offset:    0.12,
		CostBasis: 100,
		Price:     100,
		OffsetUSD: 12,
		Zone:      coretypes.ZoneBucket(2),
		State:     state,
		Now:       now,
	}, scenarioCfg)

	if len(actions) != 1 {
		t.Fatalf("want 1 action (no Cancel, no tracked order), got %d: %+v", len(actions), actions)
	}
	if _, ok := actions[0].(coretypes.PlaceLimitAction); !ok {
		t.Fatalf("action[0] = %T, want PlaceLimitAction", actions[0])
	}
}
