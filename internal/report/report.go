// Package report builds and logs the structured per-cycle summary
// emitted after Execute completes.
package report

import (
	"log/slog"
	"time"

	"lphedge/internal/coretypes"
	"lphedge/internal/execute"
)

// SymbolSummary is the per-symbol outcome of one cycle.
type SymbolSummary struct {
	Symbol      coretypes.Symbol
	Zone        coretypes.Zone
	OffsetUSD   float64
	ActionCount int
	FailedCount int
}

// Summary is the structured result of one full cycle, consumed by the
// cycle runner for logging. The failures counted here do not feed the
// runner's consecutive-error watchdog.
type Summary struct {
	StartedAt     time.Time
	Duration      time.Duration
	Symbols       []SymbolSummary
	Results       []execute.Result
	FailureCount  int
	CriticalCount int
}

// Build assembles a Summary from per-symbol prepared data and the
// Executor's results for the cycle.
func Build(startedAt time.Time, duration time.Duration, symbolZones map[coretypes.Symbol]coretypes.Zone, symbolOffsetUSD map[coretypes.Symbol]float64, results []execute.Result) Summary {
	bySymbol := make(map[coretypes.Symbol]*SymbolSummary)
	order := make([]coretypes.Symbol, 0, len(symbolZones))

	for symbol, zone := range symbolZones {
		bySymbol[symbol] = &SymbolSummary{Symbol: symbol, Zone: zone, OffsetUSD: symbolOffsetUSD[symbol]}
		order = append(order, symbol)
	}

	summary := Summary{StartedAt: startedAt, Duration: duration, Results: results}
	for _, r := range results {
		s, ok := bySymbol[r.Symbol]
		if !ok {
			s = &SymbolSummary{Symbol: r.Symbol}
			bySymbol[r.Symbol] = s
			order = append(order, r.Symbol)
		}
		s.ActionCount++
		if r.Err != nil {
			s.FailedCount++
			summary.FailureCount++
		}
		if r.Critical {
			summary.CriticalCount++
		}
	}

	summary.Symbols = make([]SymbolSummary, 0, len(order))
	for _, symbol := range order {
		summary.Symbols = append(summary.Symbols, *bySymbol[symbol])
	}
	return summary
}

// Log emits the summary at Info level, one line per symbol plus an
// aggregate line, the way the teacher logs a risk snapshot each tick.
func Log(logger *slog.Logger, summary Summary) {
	logger.Info("cycle complete",
		"duration", summary.Duration,
		"symbols", len(summary.Symbols),
		"failures", summary.FailureCount,
		"critical", summary.CriticalCount,
	)
	for _, s := range summary.Symbols {
		logger.Info("symbol summary",
			"symbol", s.Symbol,
			"zone", s.Zone.String(),
			"offset_usd", s.OffsetUSD,
			"actions", s.ActionCount,
			"failed", s.FailedCount,
		)
	}
	for _, r := range summary.Results {
		if r.Err == nil {
			continue
		}
		logger.Error("action failed", "symbol", r.Symbol, "error", r.Err, "critical", r.Critical)
	}
}
