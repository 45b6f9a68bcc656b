// Package venue implements the perpetual-futures venue adapter: the
// capability surface the core consumes, a resty-backed REST client, a
// rate limiter, a streaming pre-warm price cache, request signing, and
// "1000X" scaled-market conversion. The core never sees venue-internal
// units or aliases — everything crossing this package's boundary is in
// user symbols and native per-token quantities.
package venue

import (
	"context"
	"time"

	"lphedge/internal/coretypes"
)

// OrderStatus is the lifecycle state of a placed order.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusPartial   OrderStatus = "partial"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Order describes one open order as reported by the venue.
type Order struct {
	OrderID   string
	Symbol    coretypes.Symbol
	Side      coretypes.Side
	Size      float64
	Price     float64
	CreatedAt time.Time
}

// Fill describes one recent execution as reported by the venue.
type Fill struct {
	OrderID     string
	Symbol      coretypes.Symbol
	Side        coretypes.Side
	FilledSize  float64
	FilledPrice float64
	FilledAt    time.Time
}

// Adapter is the capability surface spec.md §6.1 names: the only way
// the Executor and Preparer reach the venue. All sizes are in native
// per-token units; all prices are USD. "1000X" scaling and symbol
// aliasing happen entirely behind this interface.
type Adapter interface {
	GetPrice(ctx context.Context, symbol coretypes.Symbol) (float64, error)
	GetPosition(ctx context.Context, symbol coretypes.Symbol) (float64, error)
	PlaceLimitOrder(ctx context.Context, symbol coretypes.Symbol, side coretypes.Side, size, price float64, idempotencyKey string) (orderID string, err error)
	PlaceMarketOrder(ctx context.Context, symbol coretypes.Symbol, side coretypes.Side, size float64, idempotencyKey string) (orderID string, err error)
	CancelAllOrders(ctx context.Context, symbol coretypes.Symbol) (cancelled int, err error)
	ListOpenOrders(ctx context.Context, symbol coretypes.Symbol) ([]Order, error)
	ListRecentFills(ctx context.Context, symbol coretypes.Symbol, window time.Duration) ([]Fill, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
}
