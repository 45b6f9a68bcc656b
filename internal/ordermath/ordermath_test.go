package ordermath

import (
	"math"
	"testing"

	"lphedge/internal/coretypes"
)

func TestCloseSize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		offset, ratio, want float64
	}{
		{0.10, 40, 0.04},
		{-0.10, 40, 0.04},
		{0.15, 100, 0.15},
	}
	for _, c := range cases {
		got := CloseSize(c.offset, c.ratio)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("CloseSize(%v,%v) = %v, want %v", c.offset, c.ratio, got, c.want)
		}
	}
}

// P6: side == Sell iff offset > 0; price > cost_basis iff offset > 0.
func TestCloseSideAndPrice_P6(t *testing.T) {
	t.Parallel()
	costBasis := 100.0
	pct := 0.2

	longSide := CloseSide(0.1)
	if longSide != coretypes.Sell {
		t.Errorf("long residual should Sell, got %v", longSide)
	}
	longPrice := ClosePrice(0.1, costBasis, pct)
	if longPrice <= costBasis {
		t.Errorf("long residual price %v should be > cost basis %v", longPrice, costBasis)
	}

	shortSide := CloseSide(-0.1)
	if shortSide != coretypes.Buy {
		t.Errorf("short residual should Buy, got %v", shortSide)
	}
	shortPrice := ClosePrice(-0.1, costBasis, pct)
	if shortPrice >= costBasis {
		t.Errorf("short residual price %v should be < cost basis %v", shortPrice, costBasis)
	}
}

func TestClosePrice_S1(t *testing.T) {
	t.Parallel()
	// scenario S1: offset=0.10, cost_basis=100 (first build @ price 100), p=0.2%
	got := ClosePrice(0.10, 100, 0.2)
	want := 100.20
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ClosePrice = %v, want %v", got, want)
	}
}
