// Package cycle drives the Prepare -> Decide -> Execute -> Report
// pipeline on a fixed interval, with exponential backoff on recoverable
// errors, reacting to circuit-open signals from its collaborators, and
// a consecutive-error watchdog — the single control-loop task spec.md's
// concurrency model describes.
package cycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lphedge/internal/breaker"
	"lphedge/internal/coretypes"
	"lphedge/internal/decide"
	"lphedge/internal/execute"
	"lphedge/internal/prepare"
	"lphedge/internal/report"
)

const (
	baseRetryAfter  = time.Second
	maxRetryAfter   = 300 * time.Second
	maxRetries      = 5
)

// Runner owns the cycle loop lifecycle: New -> Start -> (runs until
// shutdown) -> Stop, the same shape the teacher's engine uses.
type Runner struct {
	interval             time.Duration
	maxConsecutiveErrors int
	retryBaseDelay       time.Duration
	retryMaxDelay        time.Duration

	preparer *prepare.Preparer
	executor *execute.Executor

	decideCfg decide.Config

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config bundles the tunables the Runner needs beyond its collaborators.
type Config struct {
	Interval             time.Duration
	MaxConsecutiveErrors int
	Decide               decide.Config

	// RetryBaseDelay/RetryMaxDelay override the Prepare-phase backoff
	// schedule; zero means the production defaults (1s doubling to 300s).
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// New wires a Runner around its already-constructed collaborators.
func New(preparer *prepare.Preparer, executor *execute.Executor, cfg Config, logger *slog.Logger) *Runner {
	maxErrors := cfg.MaxConsecutiveErrors
	if maxErrors <= 0 {
		maxErrors = 10
	}
	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = baseRetryAfter
	}
	retryMax := cfg.RetryMaxDelay
	if retryMax <= 0 {
		retryMax = maxRetryAfter
	}
	return &Runner{
		interval:             cfg.Interval,
		maxConsecutiveErrors: maxErrors,
		retryBaseDelay:       retryBase,
		retryMaxDelay:        retryMax,
		preparer:             preparer,
		executor:             executor,
		decideCfg:            cfg.Decide,
		logger:               logger.With("component", "cycle"),
	}
}

// Start launches the loop goroutine. Returns immediately; call Stop to
// shut down gracefully.
func (r *Runner) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()
}

// Stop signals shutdown and waits for any in-flight cycle's Executor
// actions to finish before returning — the next cycle never starts,
// but the current one is allowed to leave the venue consistent.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Runner) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	consecutiveErrors := 0

	runOnce := func() bool {
		if err := r.runCycle(); err != nil {
			consecutiveErrors++
			r.logger.Error("cycle failed", "error", err, "consecutive_errors", consecutiveErrors)
			if consecutiveErrors >= r.maxConsecutiveErrors {
				r.logger.Error("max consecutive errors reached, shutting down", "limit", r.maxConsecutiveErrors)
				return false
			}
			return true
		}
		consecutiveErrors = 0
		return true
	}

	if !runOnce() {
		return
	}

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("cycle runner stopped")
			return
		case <-ticker.C:
			if !runOnce() {
				return
			}
		}
	}
}

// runCycle executes one Prepare -> Decide -> Execute -> Report pass,
// bounded by a 2x-interval timeout. A circuit-open error from Prepare's
// venue/pool collaborators sleeps out the reported reset window instead
// of counting toward the consecutive-error watchdog.
func (r *Runner) runCycle() error {
	ctx, cancel := context.WithTimeout(r.ctx, 2*r.interval)
	defer cancel()

	startedAt := time.Now()

	data, err := r.prepareWithRetry(ctx)
	if err != nil {
		var openErr *breaker.OpenError
		if errors.As(err, &openErr) {
			r.logger.Warn("circuit open, skipping cycle", "breaker", openErr.Name, "retry_after", openErr.RetryAfter)
			time.Sleep(openErr.RetryAfter)
			return nil
		}
		return err
	}

	actions := r.decideAll(data)

	// Stop cancels r.ctx; the Executor runs on a context detached from
	// that cancellation so in-flight actions complete, still bounded by
	// the cycle deadline.
	deadline, _ := ctx.Deadline()
	execCtx, execCancel := context.WithDeadline(context.WithoutCancel(r.ctx), deadline)
	defer execCancel()
	results := r.executor.Apply(execCtx, actions)

	zones := make(map[coretypes.Symbol]coretypes.Zone, len(data.Symbols))
	offsetsUSD := make(map[coretypes.Symbol]float64, len(data.Symbols))
	for _, symbol := range data.Symbols {
		sd := data.BySymbol[symbol]
		zones[symbol] = sd.Zone
		offsetsUSD[symbol] = sd.OffsetUSD
	}

	summary := report.Build(startedAt, time.Since(startedAt), zones, offsetsUSD, results)
	report.Log(r.logger, summary)

	return nil
}

// prepareWithRetry retries a failed Prepare phase with exponential
// backoff (doubling, capped at 300s) up to maxRetries, since Prepare's
// failure modes (a pool read or a price fetch) are the "recoverable I/O"
// error class spec.md assigns backoff to. A circuit-open error is
// returned immediately instead of consuming the retry budget — runCycle
// sleeps the breaker's own reset window, and stacking that on top of
// exponential backoff would only compound the wait.
func (r *Runner) prepareWithRetry(ctx context.Context) (prepare.Data, error) {
	wait := r.retryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		data, err := r.preparer.Run(ctx)
		if err == nil {
			return data, nil
		}
		var openErr *breaker.OpenError
		if errors.As(err, &openErr) {
			return prepare.Data{}, err
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		r.logger.Warn("prepare failed, backing off", "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return prepare.Data{}, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > r.retryMaxDelay {
			wait = r.retryMaxDelay
		}
	}
	return prepare.Data{}, lastErr
}

func (r *Runner) decideAll(data prepare.Data) []coretypes.Action {
	var actions []coretypes.Action
	now := time.Now()
	for _, symbol := range data.Symbols {
		sd := data.BySymbol[symbol]
		params := decide.Params{
			Symbol:    symbol,
			Offset:    sd.Offset,
			CostBasis: sd.CostBasis,
			Price:     sd.Price,
			OffsetUSD: sd.OffsetUSD,
			Zone:      sd.Zone,
			State:     sd.State,
			Now:       now,
		}
		actions = append(actions, decide.Decide(params, r.decideCfg)...)
	}
	return actions
}
