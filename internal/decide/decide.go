// Package decide implements the per-symbol Decider state machine: pure
// transformation of (offset, cost basis, price, zone, state, config)
// into an ordered list of Actions. It does no I/O and mutates nothing.
package decide

import (
	"fmt"
	"time"

	"lphedge/internal/coretypes"
	"lphedge/internal/ordermath"
)

// Params bundles the per-symbol inputs the Decider consumes for one cycle.
type Params struct {
	Symbol    coretypes.Symbol
	Offset    float64
	CostBasis float64
	Price     float64
	OffsetUSD float64
	Zone      coretypes.Zone
	State     coretypes.SymbolState
	Now       time.Time
}

// Config carries the Decider's tunables, mirroring config.HedgeConfig
// without importing it (keeps this package dependency-free and testable
// in isolation).
type Config struct {
	CloseRatio          float64
	OrderPriceOffsetPct float64
	Timeout             time.Duration
	CooldownAfterFill   time.Duration
}

// Decide evaluates rules R1-R4 in order and returns the first rule's
// emitted actions. Exactly one rule fires per call.
func Decide(p Params, cfg Config) []coretypes.Action {
	tracked := p.State.Monitoring.HasOrder()

	// R1 — threshold breach.
	if p.Zone.IsBreach() {
		var actions []coretypes.Action
		if tracked {
			actions = append(actions, coretypes.CancelAction{
				Symbol: p.Symbol,
				Why:    "exceeded max threshold",
			})
		}
		actions = append(actions, coretypes.AlertAction{
			Symbol:    p.Symbol,
			OffsetUSD: p.OffsetUSD,
			Offset:    p.Offset,
			Price:     p.Price,
			Why:       fmt.Sprintf("threshold exceeded: $%.2f", p.OffsetUSD),
		})
		return actions
	}

	// R2 — timeout.
	if p.State.Monitoring.Active && !p.State.Monitoring.StartedAt.IsZero() {
		elapsed := p.Now.Sub(p.State.Monitoring.StartedAt)
		if elapsed >= cfg.Timeout {
			var actions []coretypes.Action
			if tracked {
				actions = append(actions, coretypes.CancelAction{
					Symbol: p.Symbol,
					Why:    fmt.Sprintf("timeout after %s", elapsed.Round(time.Second)),
				})
			}
			actions = append(actions, coretypes.PlaceMarketAction{
				Symbol:     p.Symbol,
				Side:       ordermath.CloseSide(p.Offset),
				Size:       ordermath.CloseSize(p.Offset, 100),
				ForceClose: true,
				Why:        "force close due to timeout",
			})
			return actions
		}
	}

	// R3 — zone change.
	oldZone := p.State.Monitoring.CurrentZone
	if oldZone == nil || !oldZone.Equal(p.Zone) {
		inCooldown, status := checkCooldown(p.State, oldZone, p.Zone, cfg, p.Now)

		if inCooldown {
			switch status {
			case cooldownCancelOnly: // R3a
				var actions []coretypes.Action
				if tracked {
					actions = append(actions, coretypes.CancelAction{
						Symbol: p.Symbol,
						Why:    "back within threshold during cooldown",
					})
				}
				actions = append(actions, coretypes.NoActionAction{
					Symbol: p.Symbol,
					Why:    "within threshold during cooldown",
				})
				return actions
			case cooldownReOrder: // R3b
				var actions []coretypes.Action
				if tracked {
					actions = append(actions, coretypes.CancelAction{
						Symbol: p.Symbol,
						Why:    "zone worsened during cooldown",
					})
				}
				actions = append(actions, placeLimit(p, cfg, true))
				return actions
			default: // R3c: improved, or no comparable old bucket (first entry during cooldown)
				return []coretypes.Action{coretypes.NoActionAction{
					Symbol: p.Symbol,
					Why:    "zone improved during cooldown, waiting for natural regression",
				}}
			}
		}

		// Not in cooldown.
		var actions []coretypes.Action
		if tracked {
			actions = append(actions, coretypes.CancelAction{
				Symbol: p.Symbol,
				Why:    "zone changed",
			})
		}
		if p.Zone.IsNone() { // R3d
			actions = append(actions, coretypes.NoActionAction{
				Symbol: p.Symbol,
				Why:    "within threshold",
			})
		} else { // R3e
			actions = append(actions, placeLimit(p, cfg, false))
		}
		return actions
	}

	// R4 — no change.
	return []coretypes.Action{coretypes.NoActionAction{
		Symbol: p.Symbol,
		Why:    fmt.Sprintf("no change needed (zone=%s)", p.Zone),
	}}
}

func placeLimit(p Params, cfg Config, inCooldown bool) coretypes.Action {
	why := fmt.Sprintf("entered zone %s", p.Zone)
	if inCooldown {
		why = fmt.Sprintf("zone worsened to %s during cooldown", p.Zone)
	}
	return coretypes.PlaceLimitAction{
		Symbol:     p.Symbol,
		Side:       ordermath.CloseSide(p.Offset),
		Size:       ordermath.CloseSize(p.Offset, cfg.CloseRatio),
		Price:      ordermath.ClosePrice(p.Offset, p.CostBasis, cfg.OrderPriceOffsetPct),
		Zone:       p.Zone,
		InCooldown: inCooldown,
		Why:        why,
	}
}

type cooldownStatus int

const (
	cooldownNormal cooldownStatus = iota
	cooldownSkip                  // zone improved — wait it out
	cooldownCancelOnly            // returned to deadband
	cooldownReOrder               // zone worsened — re-quote
)

// checkCooldown mirrors the original source's _check_cooldown: no fill
// recorded, or the cooldown window elapsed, means "normal" (not in
// cooldown). Within the window, the new zone relative to the old one
// decides cancel-only / re-order / skip.
func checkCooldown(state coretypes.SymbolState, oldZone *coretypes.Zone, newZone coretypes.Zone, cfg Config, now time.Time) (bool, cooldownStatus) {
	if !state.HasLastFill() {
		return false, cooldownNormal
	}

	elapsed := now.Sub(state.LastFillTime)
	if elapsed >= cfg.CooldownAfterFill {
		return false, cooldownNormal
	}

	if newZone.IsNone() {
		return true, cooldownCancelOnly
	}

	if oldZone != nil && !oldZone.IsNone() && !oldZone.IsBreach() {
		oldBucket, _ := oldZone.Bucket()
		if newBucket, ok := newZone.Bucket(); ok {
			if newBucket > oldBucket {
				return true, cooldownReOrder
			}
			if newBucket < oldBucket {
				return true, cooldownSkip
			}
		}
	}

	return true, cooldownNormal
}
