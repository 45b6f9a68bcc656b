package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lphedge/internal/coretypes"
)

const (
	priceReadTimeout  = 90 * time.Second
	maxReconnectWait  = 30 * time.Second
	writeTimeout      = 10 * time.Second
)

// PriceCache streams last-trade prices over a venue websocket feed and
// keeps the freshest one per symbol. It pre-warms Client.GetPrice
// between cycles; REST stays authoritative whenever the cache entry is
// missing or older than the caller's freshness budget, so a stalled
// feed degrades to REST rather than serving stale prices silently.
type PriceCache struct {
	url string

	connMu sync.Mutex
	conn   *websocket.Conn

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	pricesMu sync.RWMutex
	prices   map[coretypes.Symbol]cachedPrice

	logger *slog.Logger
}

type cachedPrice struct {
	price float64
	at    time.Time
}

type tickerEvent struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// NewPriceCache creates a streaming price cache for wsURL. Call Run in
// its own goroutine to start the feed; Subscribe can be called before
// or after Run starts.
func NewPriceCache(wsURL string, logger *slog.Logger) *PriceCache {
	return &PriceCache{
		url:        wsURL,
		subscribed: make(map[string]bool),
		prices:     make(map[coretypes.Symbol]cachedPrice),
		logger:     logger.With("component", "venue_price_cache"),
	}
}

// Get returns the cached price for symbol if it was updated within
// maxAge, and whether a usable entry was found.
func (c *PriceCache) Get(symbol coretypes.Symbol, maxAge time.Duration) (float64, bool) {
	c.pricesMu.RLock()
	defer c.pricesMu.RUnlock()
	entry, ok := c.prices[symbol]
	if !ok || time.Since(entry.at) > maxAge {
		return 0, false
	}
	return entry.price, true
}

// Subscribe adds symbols to the live feed, re-sent automatically on reconnect.
func (c *PriceCache) Subscribe(symbols []coretypes.Symbol) error {
	c.subscribedMu.Lock()
	for _, s := range symbols {
		c.subscribed[string(s)] = true
	}
	c.subscribedMu.Unlock()
	return c.writeSubscription()
}

// Run connects and maintains the price feed with exponential backoff
// reconnection (1s doubling to 30s), matching the cadence of a typical
// trading-venue websocket client. Blocks until ctx is cancelled.
func (c *PriceCache) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("price feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close shuts down the active connection, if any.
func (c *PriceCache) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *PriceCache) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		conn.Close()
		c.conn = nil
		c.connMu.Unlock()
	}()

	if err := c.writeSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.logger.Info("price feed connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(priceReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		c.dispatch(msg)
	}
}

func (c *PriceCache) writeSubscription() error {
	c.subscribedMu.RLock()
	symbols := make([]string, 0, len(c.subscribed))
	for s := range c.subscribed {
		symbols = append(symbols, s)
	}
	c.subscribedMu.RUnlock()

	if len(symbols) == 0 {
		return nil
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil // queued; sent on next connect
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(map[string]any{
		"operation": "subscribe",
		"symbols":   symbols,
	})
}

func (c *PriceCache) dispatch(data []byte) {
	var evt tickerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		c.logger.Debug("ignoring unparseable price feed message", "data", string(data))
		return
	}
	if evt.Symbol == "" {
		return
	}

	c.pricesMu.Lock()
	c.prices[coretypes.Symbol(evt.Symbol)] = cachedPrice{price: evt.Price, at: time.Now()}
	c.pricesMu.Unlock()
}
