// Solana LP-hedge bot — an automated delta-hedging control loop that
// defends a Solana LP pool's (JLP/ALP) net asset exposure against a
// perpetual-futures venue position.
//
// Architecture:
//
//	main.go              — entry point: loads config, wires collaborators, waits for SIGINT/SIGTERM
//	cycle/runner.go      — orchestrator: runs Prepare -> Decide -> Execute -> Report on a fixed interval
//	prepare/prepare.go   — pool aggregation + concurrent venue reads + offset tracking + zone classification
//	decide/decide.go     — state machine turning a symbol's zone/offset into venue actions
//	execute/executor.go — applies actions against the venue, idempotency keys, double-check confirmation
//	pool/*.go            — JLP/ALP on-chain pool position readers
//	venue/*.go           — REST client, streaming price cache, rate limiting, request signing, 1000X scaling
//	breaker/breaker.go   — circuit breaker, one instance per collaborator class
//	notify/*.go          — threshold/force-close/system-error alerts with per-kind cooldowns
//	store/store.go       — in-memory per-symbol offset/cost-basis state
//
// How it keeps the pool hedged:
//
//	Each cycle, the bot computes the LP pool's ideal per-symbol hedge
//	from its on-chain holdings, compares it against the venue's actual
//	position, and classifies the USD gap into a tiered zone. Small gaps
//	are ignored, moderate gaps are closed with a resting limit order
//	sized to a ratio of the residual, a resting order that outlives its
//	timeout is force-closed at market, and gaps above the maximum
//	threshold cancel any tracked order and raise an operator alert.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lphedge/internal/breaker"
	"lphedge/internal/config"
	"lphedge/internal/coretypes"
	"lphedge/internal/cycle"
	"lphedge/internal/decide"
	"lphedge/internal/execute"
	"lphedge/internal/notify"
	"lphedge/internal/pool"
	"lphedge/internal/prepare"
	"lphedge/internal/store"
	"lphedge/internal/venue"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("HEDGE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	st := store.New()

	auth := venue.NewAuth(cfg.Venue.APIKey, cfg.Venue.APISecret)
	rl := venue.NewRateLimiter(
		cfg.RateLimit.PriceCapacity, cfg.RateLimit.PriceRate,
		cfg.RateLimit.OrderCapacity, cfg.RateLimit.OrderRate,
		cfg.RateLimit.CancelCapacity, cfg.RateLimit.CancelRate,
	)
	venueClient := venue.NewClient(cfg.Venue.BaseURL, auth, rl, cfg.Venue.ScaledSymbols, cfg.DryRun, logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Venue.WSURL != "" {
		priceCache := venue.NewPriceCache(cfg.Venue.WSURL, logger)
		venueClient.AttachPriceCache(priceCache)
		if err := priceCache.Subscribe(configuredSymbols(cfg)); err != nil {
			logger.Warn("price feed subscribe failed, will retry on connect", "error", err)
		}
		go func() {
			if err := priceCache.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				logger.Error("price cache stopped", "error", err)
			}
		}()
	}

	var pools []pool.Enabled
	if cfg.Pools.JLPAmount > 0 {
		pools = append(pools, pool.Enabled{Reader: pool.NewJLPReader(cfg.Pools.JLPURL), Amount: cfg.Pools.JLPAmount})
	}
	if cfg.Pools.ALPAmount > 0 {
		pools = append(pools, pool.Enabled{Reader: pool.NewALPReader(cfg.Pools.ALPURL), Amount: cfg.Pools.ALPAmount})
	}

	var sender notify.Sender
	if cfg.Notify.WebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.Notify.WebhookURL)
	}

	venueBreaker := breaker.New("venue", cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout, cfg.Breaker.HalfOpenTrials)
	poolBreaker := breaker.New("pool", cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout, cfg.Breaker.HalfOpenTrials)
	notifierBreaker := breaker.New("notifier", cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout, cfg.Breaker.HalfOpenTrials)

	notifier := notify.New(sender, notifierBreaker, logger)

	thresholds := prepare.Thresholds{
		MinUSD:  cfg.Thresholds.MinUSD,
		MaxUSD:  cfg.Thresholds.MaxUSD,
		StepUSD: cfg.Thresholds.StepUSD,
	}
	preparer := prepare.New(venueClient, st, pools, cfg.Pools.Aliases, thresholds, cfg.Symbols.InitialOffset, cfg.Symbols.PredefinedOffset, venueBreaker, poolBreaker, logger)
	executor := execute.New(venueClient, st, notifier, venueBreaker, logger)

	runner := cycle.New(preparer, executor, cycle.Config{
		Interval:             cfg.Interval,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		Decide: decide.Config{
			CloseRatio:          cfg.Hedge.CloseRatio,
			OrderPriceOffsetPct: cfg.Hedge.OrderPriceOffsetPct,
			Timeout:             cfg.Hedge.Timeout,
			CooldownAfterFill:   cfg.Hedge.CooldownAfterFill,
		},
	}, logger)

	runner.Start(rootCtx)

	logger.Info("lp hedge bot started",
		"interval", cfg.Interval,
		"jlp_amount", cfg.Pools.JLPAmount,
		"alp_amount", cfg.Pools.ALPAmount,
		"close_ratio", cfg.Hedge.CloseRatio,
		"dry_run", cfg.DryRun,
	)

	<-rootCtx.Done()
	logger.Info("received shutdown signal", "signal", fmt.Sprintf("%v", rootCtx.Err()))

	runner.Stop()
	logger.Info("lp hedge bot stopped")
}

// configuredSymbols derives the set of symbols this deployment hedges,
// as the union of every symbol named in the offset and scaling config —
// there is no standalone symbol list, so this is what the price cache
// pre-warms on startup.
func configuredSymbols(cfg *config.Config) []coretypes.Symbol {
	seen := make(map[coretypes.Symbol]bool)
	for s := range cfg.Symbols.InitialOffset {
		seen[coretypes.Symbol(s)] = true
	}
	for s := range cfg.Symbols.PredefinedOffset {
		seen[coretypes.Symbol(s)] = true
	}
	for s := range cfg.Venue.ScaledSymbols {
		seen[coretypes.Symbol(s)] = true
	}
	symbols := make([]coretypes.Symbol, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	return symbols
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
