package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lphedge/internal/coretypes"
)

// Client is the REST implementation of Adapter. Every mutating or
// price/position-reading call passes through the rate limiter, and
// every size/price crossing the boundary passes through the scaler so
// the core always sees per-single-token, unscaled units.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	scale  *scaler
	cache  *PriceCache // optional streaming pre-warm; nil disables it
	dryRun bool
	logger *slog.Logger
}

// NewClient builds a venue REST client.
func NewClient(baseURL string, auth *Auth, rl *RateLimiter, scaledSymbols map[string]float64, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     rl,
		scale:  newScaler(scaledSymbols),
		dryRun: dryRun,
		logger: logger.With("component", "venue"),
	}
}

// AttachPriceCache wires a streaming pre-warm cache; GetPrice prefers
// a fresh cached value over a REST round trip when one is available.
func (c *Client) AttachPriceCache(cache *PriceCache) {
	c.cache = cache
}

type priceResponse struct {
	Price float64 `json:"price"`
}

// GetPrice returns the mid price (falling back to last trade, per the
// venue's own semantics), unscaled back to per-single-token units.
func (c *Client) GetPrice(ctx context.Context, symbol coretypes.Symbol) (float64, error) {
	if c.cache != nil {
		if price, ok := c.cache.Get(symbol, 5*time.Second); ok {
			_, price = c.scale.FromVenue(string(symbol), 0, price)
			return price, nil
		}
	}

	if err := c.rl.Price.Wait(ctx); err != nil {
		return 0, err
	}

	var result priceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", string(symbol)).
		SetResult(&result).
		Get("/price")
	if err != nil {
		return 0, fmt.Errorf("get price: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("get price: status %d: %s", resp.StatusCode(), resp.String())
	}

	_, price := c.scale.FromVenue(string(symbol), 0, result.Price)
	return price, nil
}

type positionResponse struct {
	Position float64 `json:"position"`
}

// GetPosition returns the signed position, unscaled to per-single-token units.
func (c *Client) GetPosition(ctx context.Context, symbol coretypes.Symbol) (float64, error) {
	if err := c.rl.Price.Wait(ctx); err != nil {
		return 0, err
	}

	var result positionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", string(symbol)).
		SetResult(&result).
		Get("/position")
	if err != nil {
		return 0, fmt.Errorf("get position: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("get position: status %d: %s", resp.StatusCode(), resp.String())
	}

	size, _ := c.scale.FromVenue(string(symbol), result.Position, 0)
	return size, nil
}

type orderRequest struct {
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Size           string `json:"size"`
	Price          string `json:"price,omitempty"`
	Type           string `json:"type"`
	IdempotencyKey string `json:"idempotency_key"`
}

type orderResponse struct {
	OrderID string `json:"order_id"`
}

// PlaceLimitOrder rests a limit order, scaling into venue units first.
// idempotencyKey lets a retried call after a transport error be safely
// replayed without double-submitting.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol coretypes.Symbol, side coretypes.Side, size, price float64, idempotencyKey string) (string, error) {
	if c.dryRun {
		return "dry-run-" + uuid.NewString(), nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return "", err
	}

	venueSize, venuePrice := c.scale.ToVenue(string(symbol), size, price)
	req := orderRequest{
		Symbol:         string(symbol),
		Side:           string(side),
		Size:           decimalString(venueSize),
		Price:          decimalString(venuePrice),
		Type:           "limit",
		IdempotencyKey: idempotencyKey,
	}

	return c.postOrder(ctx, req)
}

// PlaceMarketOrder submits an immediate-or-cancel close. The venue may
// synthesise this as a limit order near mid; this client does not care.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol coretypes.Symbol, side coretypes.Side, size float64, idempotencyKey string) (string, error) {
	if c.dryRun {
		return "dry-run-" + uuid.NewString(), nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return "", err
	}

	venueSize, _ := c.scale.ToVenue(string(symbol), size, 0)
	req := orderRequest{
		Symbol:         string(symbol),
		Side:           string(side),
		Size:           decimalString(venueSize),
		Type:           "market",
		IdempotencyKey: idempotencyKey,
	}

	return c.postOrder(ctx, req)
}

func (c *Client) postOrder(ctx context.Context, req orderRequest) (string, error) {
	headers, err := c.sign(ctx, http.MethodPost, "/orders", req)
	if err != nil {
		return "", err
	}

	var result orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(req).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("place order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.OrderID, nil
}

type cancelResponse struct {
	Cancelled int `json:"cancelled"`
}

// CancelAllOrders cancels every open order for symbol and returns the
// count actually cancelled; idempotent if none were open.
func (c *Client) CancelAllOrders(ctx context.Context, symbol coretypes.Symbol) (int, error) {
	if c.dryRun {
		return 0, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return 0, err
	}

	headers, err := c.sign(ctx, http.MethodDelete, "/cancel-all", nil)
	if err != nil {
		return 0, err
	}

	var result cancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("symbol", string(symbol)).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return 0, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Cancelled, nil
}

type orderDTO struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOpenOrders lists open orders for symbol, unscaled to core units.
func (c *Client) ListOpenOrders(ctx context.Context, symbol coretypes.Symbol) ([]Order, error) {
	if err := c.rl.Price.Wait(ctx); err != nil {
		return nil, err
	}

	var dtos []orderDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", string(symbol)).
		SetResult(&dtos).
		Get("/orders")
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list open orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	orders := make([]Order, len(dtos))
	for i, d := range dtos {
		size, price := c.scale.FromVenue(d.Symbol, d.Size, d.Price)
		orders[i] = Order{
			OrderID:   d.OrderID,
			Symbol:    coretypes.Symbol(d.Symbol),
			Side:      coretypes.Side(d.Side),
			Size:      size,
			Price:     price,
			CreatedAt: d.CreatedAt,
		}
	}
	return orders, nil
}

type fillDTO struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	FilledSize  float64   `json:"filled_size"`
	FilledPrice float64   `json:"filled_price"`
	FilledAt    time.Time `json:"filled_at"`
}

// ListRecentFills lists fills within window minutes for symbol, unscaled.
func (c *Client) ListRecentFills(ctx context.Context, symbol coretypes.Symbol, window time.Duration) ([]Fill, error) {
	if err := c.rl.Price.Wait(ctx); err != nil {
		return nil, err
	}

	var dtos []fillDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", string(symbol)).
		SetQueryParam("window_minutes", fmt.Sprintf("%d", int(window.Minutes()))).
		SetResult(&dtos).
		Get("/fills")
	if err != nil {
		return nil, fmt.Errorf("list recent fills: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list recent fills: status %d: %s", resp.StatusCode(), resp.String())
	}

	fills := make([]Fill, len(dtos))
	for i, d := range dtos {
		size, price := c.scale.FromVenue(d.Symbol, d.FilledSize, d.FilledPrice)
		fills[i] = Fill{
			OrderID:     d.OrderID,
			Symbol:      coretypes.Symbol(d.Symbol),
			Side:        coretypes.Side(d.Side),
			FilledSize:  size,
			FilledPrice: price,
			FilledAt:    d.FilledAt,
		}
	}
	return fills, nil
}

type orderStatusResponse struct {
	Status string `json:"status"`
}

// GetOrderStatus is used by the Executor's post-placement double-check.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	var result orderStatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/orders/" + orderID)
	if err != nil {
		return "", fmt.Errorf("get order status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("get order status: status %d: %s", resp.StatusCode(), resp.String())
	}
	return OrderStatus(result.Status), nil
}

func (c *Client) sign(ctx context.Context, method, path string, body any) (map[string]string, error) {
	var bodyStr string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(b)
	}
	return c.auth.Headers(method, path, bodyStr)
}

// decimalString renders a float64 as a decimal string without the
// binary-float formatting drift %v/%f can introduce, for wire payloads
// the venue parses as fixed-point.
func decimalString(v float64) string {
	return decimal.NewFromFloat(v).String()
}
