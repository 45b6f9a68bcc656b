// Package notify sends operator-facing alerts with per-kind cooldown
// suppression, so a symbol stuck at the venue doesn't page the
// operator on every cycle.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lphedge/internal/breaker"
	"lphedge/internal/coretypes"
)

// Kind identifies a notification category; each has its own cooldown
// window, mirroring the three alert kinds the hedge loop raises.
type Kind string

const (
	KindThreshold    Kind = "threshold_exceeded"
	KindForceClose   Kind = "force_close"
	KindSystemError  Kind = "system_error"
)

var defaultCooldowns = map[Kind]time.Duration{
	KindThreshold:   2 * time.Minute,
	KindForceClose:  5 * time.Minute,
	KindSystemError: 30 * time.Second,
}

// Sender delivers one rendered notification. Implementations wrap a
// concrete transport (webhook, pager, chat); Notifier is transport-agnostic.
type Sender interface {
	Send(ctx context.Context, title, message string) error
}

// Notifier gates Sender calls behind a per-(kind,symbol) cooldown so a
// symbol stuck at the venue doesn't re-alert every cycle, and behind a
// circuit breaker so a down notification transport doesn't retry at
// full rate.
type Notifier struct {
	sender    Sender
	breaker   *breaker.Breaker
	cooldowns map[Kind]time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time // "kind:symbol" -> last send time
}

// New creates a Notifier. A nil sender is valid: every alert that passes
// its cooldown is then only logged, which is how deployments without a
// configured webhook URL run.
// cb gates every Sender.Send call — the "notifier" collaborator class.
func New(sender Sender, cb *breaker.Breaker, logger *slog.Logger) *Notifier {
	cooldowns := make(map[Kind]time.Duration, len(defaultCooldowns))
	for k, v := range defaultCooldowns {
		cooldowns[k] = v
	}
	return &Notifier{
		sender:    sender,
		breaker:   cb,
		cooldowns: cooldowns,
		logger:    logger.With("component", "notify"),
		lastSent:  make(map[string]time.Time),
	}
}

// shouldSend reports whether alertKey is past its cooldown, and if so
// stamps it as sent now so concurrent/rapid calls don't double-fire.
func (n *Notifier) shouldSend(kind Kind, alertKey string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	cooldown := n.cooldowns[kind]
	last, ok := n.lastSent[alertKey]
	if ok && now.Sub(last) < cooldown {
		return false
	}
	n.lastSent[alertKey] = now
	return true
}

func (n *Notifier) send(ctx context.Context, kind Kind, alertKey, title, message string) {
	if !n.shouldSend(kind, alertKey, time.Now()) {
		n.logger.Debug("alert suppressed by cooldown", "kind", kind, "key", alertKey)
		return
	}
	if n.sender == nil {
		n.logger.Info("alert (no sender configured)", "kind", kind, "title", title, "message", message)
		return
	}
	if err := n.breaker.Allow(); err != nil {
		n.logger.Warn("send notification rejected, notifier circuit open", "kind", kind, "error", err)
		return
	}
	if err := n.sender.Send(ctx, title, message); err != nil {
		n.breaker.RecordFailure()
		n.logger.Error("send notification failed", "kind", kind, "error", err)
		return
	}
	n.breaker.RecordSuccess()
}

// AlertThreshold notifies that a symbol's offset crossed a configured
// threshold; two-minute cooldown per symbol.
func (n *Notifier) AlertThreshold(ctx context.Context, symbol coretypes.Symbol, offsetUSD, offset, price float64) {
	key := fmt.Sprintf("%s:%s", KindThreshold, symbol)
	title := fmt.Sprintf("%s threshold exceeded", symbol)
	message := fmt.Sprintf("offset $%.2f (%+.4f %s) @ $%.2f", abs(offsetUSD), offset, symbol, price)
	n.send(ctx, KindThreshold, key, title, message)
}

// AlertForceClose notifies a timed-out limit order was force-closed at
// market; five-minute cooldown per symbol.
func (n *Notifier) AlertForceClose(ctx context.Context, symbol coretypes.Symbol, side coretypes.Side, size float64) {
	key := fmt.Sprintf("%s:%s", KindForceClose, symbol)
	title := fmt.Sprintf("%s force-closed", symbol)
	message := fmt.Sprintf("force close: %s %.4f %s (order timed out unfilled)", side, size, symbol)
	n.send(ctx, KindForceClose, key, title, message)
}

// AlertSystemError notifies of an operational error; thirty-second
// global cooldown so a crash loop doesn't flood the channel.
func (n *Notifier) AlertSystemError(ctx context.Context, message string) {
	n.send(ctx, KindSystemError, string(KindSystemError), "system error", message)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
