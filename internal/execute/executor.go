// Package execute applies Decider actions to the venue and writes the
// resulting state back to the StateStore. An action failure is
// recorded into the cycle's results and never aborts its siblings;
// the cycle runner reports those results in the cycle summary and does
// not count them toward its consecutive-error watchdog.
package execute

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lphedge/internal/breaker"
	"lphedge/internal/config"
	"lphedge/internal/coretypes"
	"lphedge/internal/notify"
	"lphedge/internal/store"
	"lphedge/internal/venue"
)

// orderConfirmDelay is how long the Executor waits after placing a
// limit order before double-checking its status at the venue.
const orderConfirmDelay = 100 * time.Millisecond

// Result is the outcome of applying one Action.
type Result struct {
	Symbol   coretypes.Symbol
	Action   coretypes.Action
	Err      error
	Critical bool // elevated to a system-error alert even though the cycle continues
}

// Executor applies coretypes.Action values to the venue, serially per
// symbol, updating StateStore as each action resolves.
type Executor struct {
	venue    venue.Adapter
	store    *store.Store
	notifier *notify.Notifier
	breaker  *breaker.Breaker
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Executor. cb gates every venue call this Executor
// makes — the same "venue" collaborator class breaker shared with
// whatever Preparer reads venue prices/positions.
func New(adapter venue.Adapter, st *store.Store, notifier *notify.Notifier, cb *breaker.Breaker, logger *slog.Logger) *Executor {
	return &Executor{
		venue:    adapter,
		store:    st,
		notifier: notifier,
		breaker:  cb,
		logger:   logger.With("component", "execute"),
		now:      time.Now,
	}
}

// Apply runs every action in order for its symbol and returns one
// Result per action. Actions for different symbols may be interleaved
// by the caller across goroutines since StateStore is per-symbol
// locked, but within a single Apply call actions run serially so log
// ordering matches emission order.
func (e *Executor) Apply(ctx context.Context, actions []coretypes.Action) []Result {
	results := make([]Result, 0, len(actions))
	for _, action := range actions {
		results = append(results, e.apply(ctx, action))
	}
	return results
}

func (e *Executor) apply(ctx context.Context, action coretypes.Action) Result {
	switch a := action.(type) {
	case coretypes.PlaceLimitAction:
		return e.placeLimit(ctx, a)
	case coretypes.PlaceMarketAction:
		return e.placeMarket(ctx, a)
	case coretypes.CancelAction:
		return e.cancel(ctx, a)
	case coretypes.AlertAction:
		return e.alert(ctx, a)
	case coretypes.NoActionAction:
		return Result{Symbol: a.Symbol, Action: a}
	default:
		return Result{Action: action, Err: fmt.Errorf("%w: unknown action type %T", coretypes.ErrInvalidInput, action)}
	}
}

func (e *Executor) placeLimit(ctx context.Context, a coretypes.PlaceLimitAction) Result {
	logger := e.logger.With("symbol", a.Symbol, "side", a.Side, "size", a.Size, "price", a.Price)

	orderValue := a.Size * a.Price
	if orderValue < config.MinOrderValueUSD {
		err := fmt.Errorf("%w: order value $%.2f below minimum $%.2f", coretypes.ErrInvalidInput, orderValue, config.MinOrderValueUSD)
		logger.Warn("place limit rejected", "error", err)
		return Result{Symbol: a.Symbol, Action: a, Err: err}
	}

	if err := e.breaker.Allow(); err != nil {
		logger.Warn("place limit rejected, venue circuit open", "error", err)
		return Result{Symbol: a.Symbol, Action: a, Err: err}
	}
	idempotencyKey := uuid.NewString()
	orderID, err := e.venue.PlaceLimitOrder(ctx, a.Symbol, a.Side, a.Size, a.Price, idempotencyKey)
	if err != nil {
		e.breaker.RecordFailure()
		logger.Error("place limit order failed", "error", err)
		return Result{Symbol: a.Symbol, Action: a, Err: fmt.Errorf("place limit order: %w", err)}
	}
	e.breaker.RecordSuccess()

	select {
	case <-ctx.Done():
		return Result{Symbol: a.Symbol, Action: a, Err: ctx.Err()}
	case <-time.After(orderConfirmDelay):
	}

	if err := e.breaker.Allow(); err != nil {
		logger.Warn("order confirmation rejected, venue circuit open", "order_id", orderID, "error", err)
		return Result{Symbol: a.Symbol, Action: a, Err: err}
	}
	status, err := e.venue.GetOrderStatus(ctx, orderID)
	if err != nil {
		e.breaker.RecordFailure()
		logger.Error("order confirmation failed", "order_id", orderID, "error", err)
		return Result{Symbol: a.Symbol, Action: a, Err: fmt.Errorf("confirm order %s: %w", orderID, err)}
	}
	e.breaker.RecordSuccess()
	switch status {
	case venue.StatusOpen, venue.StatusFilled, venue.StatusPartial:
	default:
		err := fmt.Errorf("order %s confirmed in unexpected status %q", orderID, status)
		logger.Error("order confirmation rejected", "status", status)
		return Result{Symbol: a.Symbol, Action: a, Err: err}
	}

	zone := a.Zone
	now := e.now()
	e.store.Update(a.Symbol, func(s coretypes.SymbolState) coretypes.SymbolState {
		s.Monitoring = coretypes.Monitoring{Active: true, OrderID: orderID, CurrentZone: &zone, StartedAt: now}
		return s
	})

	logger.Info("placed limit order", "order_id", orderID, "status", status)
	return Result{Symbol: a.Symbol, Action: a}
}

func (e *Executor) placeMarket(ctx context.Context, a coretypes.PlaceMarketAction) Result {
	logger := e.logger.With("symbol", a.Symbol, "side", a.Side, "size", a.Size, "force_close", a.ForceClose)

	if err := e.breaker.Allow(); err != nil {
		logger.Warn("place market rejected, venue circuit open", "error", err)
		if e.notifier != nil {
			e.notifier.AlertSystemError(ctx, fmt.Sprintf("market order rejected for %s: %v", a.Symbol, err))
		}
		return Result{Symbol: a.Symbol, Action: a, Err: err, Critical: true}
	}
	idempotencyKey := uuid.NewString()
	orderID, err := e.venue.PlaceMarketOrder(ctx, a.Symbol, a.Side, a.Size, idempotencyKey)
	if err != nil {
		e.breaker.RecordFailure()
		logger.Error("place market order failed", "error", err)
		if e.notifier != nil {
			e.notifier.AlertSystemError(ctx, fmt.Sprintf("market order failed for %s: %v", a.Symbol, err))
		}
		return Result{Symbol: a.Symbol, Action: a, Err: fmt.Errorf("place market order: %w", err), Critical: true}
	}
	e.breaker.RecordSuccess()

	now := e.now()
	e.store.Update(a.Symbol, func(s coretypes.SymbolState) coretypes.SymbolState {
		zone := s.Monitoring.CurrentZone
		s.Monitoring = coretypes.Monitoring{Active: false, CurrentZone: zone}
		s.LastFillTime = now
		return s
	})

	if a.ForceClose && e.notifier != nil {
		e.notifier.AlertForceClose(ctx, a.Symbol, a.Side, a.Size)
	}

	logger.Info("placed market order", "order_id", orderID)
	return Result{Symbol: a.Symbol, Action: a}
}

func (e *Executor) cancel(ctx context.Context, a coretypes.CancelAction) Result {
	logger := e.logger.With("symbol", a.Symbol)

	if err := e.breaker.Allow(); err != nil {
		logger.Warn("cancel rejected, venue circuit open", "error", err)
		return Result{Symbol: a.Symbol, Action: a, Err: err}
	}
	cancelled, err := e.venue.CancelAllOrders(ctx, a.Symbol)
	if err != nil {
		e.breaker.RecordFailure()
		logger.Error("cancel all orders failed", "error", err)
		return Result{Symbol: a.Symbol, Action: a, Err: fmt.Errorf("cancel all orders: %w", err)}
	}
	e.breaker.RecordSuccess()

	e.store.Update(a.Symbol, func(s coretypes.SymbolState) coretypes.SymbolState {
		zone := s.Monitoring.CurrentZone
		s.Monitoring = coretypes.Monitoring{Active: false, CurrentZone: zone}
		return s
	})

	logger.Info("cancelled orders", "count", cancelled)
	return Result{Symbol: a.Symbol, Action: a}
}

func (e *Executor) alert(ctx context.Context, a coretypes.AlertAction) Result {
	if e.notifier != nil {
		e.notifier.AlertThreshold(ctx, a.Symbol, a.OffsetUSD, a.Offset, a.Price)
	}
	return Result{Symbol: a.Symbol, Action: a}
}
