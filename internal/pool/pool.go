// Package pool reads on-chain LP pool holdings and aggregates them
// into the ideal per-symbol hedge the rest of the system defends.
package pool

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"lphedge/internal/breaker"
	"lphedge/internal/coretypes"
)

// Reader is the opaque pool capability the core consumes: a pure query
// returning the caller's share of the pool's holdings, keyed by the
// pool's own (possibly aliased) symbol spelling.
type Reader interface {
	// Name identifies the pool for logging (e.g. "jlp", "alp").
	Name() string
	// FetchIdealPositions returns {raw_symbol: amount} for the given LP share.
	FetchIdealPositions(ctx context.Context, lpAmount float64) (map[string]float64, error)
}

// Enabled is a (Reader, amount) pair; a pool with amount <= 0 is skipped.
type Enabled struct {
	Reader Reader
	Amount float64
}

// Aggregate fetches every enabled pool's positions concurrently, maps
// raw symbols to user symbols via aliases, negates (pool long exposure
// becomes required short hedge) and sums across pools. cb gates the
// whole fetch: one Allow() per Aggregate call, one RecordSuccess/
// RecordFailure for the fetch as a unit, since every enabled reader is
// the same "pool" collaborator class.
//
// If any enabled pool read fails, the whole aggregate fails — pool
// reads are pure queries, so abort-and-retry on the next cycle is safe.
func Aggregate(ctx context.Context, pools []Enabled, aliases map[string]string, cb *breaker.Breaker) (coretypes.IdealHedge, error) {
	var active []Enabled
	for _, p := range pools {
		if p.Amount > 0 {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return coretypes.IdealHedge{}, nil
	}

	if err := cb.Allow(); err != nil {
		return nil, err
	}

	results := make([]map[string]float64, len(active))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range active {
		i, p := i, p
		g.Go(func() error {
			raw, err := p.Reader.FetchIdealPositions(gctx, p.Amount)
			if err != nil {
				return fmt.Errorf("pool %s: %w", p.Reader.Name(), err)
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cb.RecordFailure()
		return nil, err
	}
	cb.RecordSuccess()

	merged := make(coretypes.IdealHedge)
	for _, raw := range results {
		symbols := make([]string, 0, len(raw))
		for s := range raw {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols) // deterministic summation order for reproducible float results

		for _, rawSymbol := range symbols {
			amount := raw[rawSymbol]
			userSymbol := rawSymbol
			if alias, ok := aliases[rawSymbol]; ok {
				userSymbol = alias
			}
			merged[coretypes.Symbol(userSymbol)] += -amount
		}
	}
	return merged, nil
}
