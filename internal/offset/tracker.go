// Package offset implements the weighted-average cost-basis tracker.
//
// Update treats every change in residual exposure as an additional
// fill of delta units at the current price, so cost basis is a weighted
// average over those fills: it moves toward the current price while the
// residual grows and away from it while the residual shrinks (it stays
// put only when the price equals the prior cost). See Update's doc
// comment for the exact cases.
package offset

import (
	"fmt"
	"math"

	"lphedge/internal/coretypes"
)

const epsilon = 1e-8

// Update recomputes (offset, cost_basis) from the latest ideal/actual
// pair and a price observation, given the prior (offset, cost_basis).
//
// new_offset = actual - ideal; delta = new_offset - old_offset.
//
//  1. |delta| < epsilon            -> (new_offset, old_cost): no trade, cost unchanged.
//  2. |new_offset| < epsilon       -> (0, 0): fully flat, cost forgotten.
//  3. |old_offset| < epsilon       -> (new_offset, price): first build, cost = price.
//  4. otherwise                    -> weighted average across the delta fill.
func Update(ideal, actual, price, oldOffset, oldCost float64) (newOffset, newCost float64, err error) {
	if !isFinite(ideal) || !isFinite(actual) || !isFinite(price) || !isFinite(oldOffset) || !isFinite(oldCost) {
		return 0, 0, fmt.Errorf("%w: all inputs must be finite", coretypes.ErrInvalidInput)
	}
	if price <= 0 {
		return 0, 0, fmt.Errorf("%w: price must be > 0, got %v", coretypes.ErrInvalidInput, price)
	}
	if oldCost < 0 {
		return 0, 0, fmt.Errorf("%w: old_cost must be >= 0, got %v", coretypes.ErrInvalidInput, oldCost)
	}

	newOffset = actual - ideal
	delta := newOffset - oldOffset

	if math.Abs(delta) < epsilon {
		return newOffset, oldCost, nil
	}
	if math.Abs(newOffset) < epsilon {
		return 0, 0, nil
	}
	if math.Abs(oldOffset) < epsilon {
		return newOffset, price, nil
	}

	newCost = (oldOffset*oldCost + delta*price) / newOffset
	if newCost < 0 {
		return 0, 0, fmt.Errorf("%w: computed %v", coretypes.ErrNegativeCost, newCost)
	}
	return newOffset, newCost, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
