// ratelimit.go implements token-bucket rate limiting for venue REST
// categories (price reads, order placement, cancellation), continuous-
// refill rather than fixed-window, so callers never see a burst wall.
package venue

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or ctx is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens refilled per second
	lastTime time.Time
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups token buckets by venue REST category.
type RateLimiter struct {
	Price  *TokenBucket // get_price, get_position
	Order  *TokenBucket // place_limit_order, place_market_order
	Cancel *TokenBucket // cancel_all_orders
}

// NewRateLimiter builds buckets from the given capacity/rate pairs.
func NewRateLimiter(priceCap, priceRate, orderCap, orderRate, cancelCap, cancelRate float64) *RateLimiter {
	return &RateLimiter{
		Price:  NewTokenBucket(priceCap, priceRate),
		Order:  NewTokenBucket(orderCap, orderRate),
		Cancel: NewTokenBucket(cancelCap, cancelRate),
	}
}
