// Package ordermath derives the close-size, side and resting price for
// a reductive order from the current residual offset and cost basis.
package ordermath

import "lphedge/internal/coretypes"

// CloseSize returns the size to quote: a closeRatio percentage of the
// absolute residual offset. closeRatio is in (0, 100].
func CloseSize(offset, closeRatio float64) float64 {
	if offset < 0 {
		offset = -offset
	}
	return offset * closeRatio / 100
}

// CloseSide returns Sell for a long residual (offset > 0), Buy
// otherwise — the direction that reduces the residual.
func CloseSide(offset float64) coretypes.Side {
	if offset > 0 {
		return coretypes.Sell
	}
	return coretypes.Buy
}

// ClosePrice returns the resting limit price: costBasis offset by
// priceOffsetPct above cost for a long residual (selling, locking in a
// small profit if filled) or below cost for a short residual.
func ClosePrice(offset, costBasis, priceOffsetPct float64) float64 {
	if offset > 0 {
		return costBasis * (1 + priceOffsetPct/100)
	}
	return costBasis * (1 - priceOffsetPct/100)
}
