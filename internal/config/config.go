// Package config defines all configuration for the hedge loop.
// Config is loaded from a YAML file with sensitive fields overridable
// via HEDGE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun               bool          `mapstructure:"dry_run"`
	Interval             time.Duration `mapstructure:"interval"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`

	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	Hedge      HedgeConfig     `mapstructure:"hedge"`
	Symbols    SymbolsConfig   `mapstructure:"symbols"`
	Pools      PoolsConfig     `mapstructure:"pools"`
	Venue      VenueConfig     `mapstructure:"venue"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Breaker    BreakerConfig   `mapstructure:"breaker"`
	Notify     NotifyConfig    `mapstructure:"notify"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}

// ThresholdConfig is the tiered USD band that drives ZoneClassifier.
type ThresholdConfig struct {
	MinUSD  float64 `mapstructure:"min_usd"`
	MaxUSD  float64 `mapstructure:"max_usd"`
	StepUSD float64 `mapstructure:"step_usd"`
}

// HedgeConfig tunes how aggressively residual exposure is closed.
//
//   - CloseRatio: percent of residual to quote per order, (0, 100].
//   - OrderPriceOffsetPct: distance from cost basis where the resting limit rests.
//   - Timeout: a resting order older than this is cancelled and forced to market.
//   - CooldownAfterFill: window during which re-orders are gated after a fill.
type HedgeConfig struct {
	CloseRatio           float64       `mapstructure:"close_ratio"`
	OrderPriceOffsetPct  float64       `mapstructure:"order_price_offset_pct"`
	Timeout              time.Duration `mapstructure:"timeout"`
	CooldownAfterFill    time.Duration `mapstructure:"cooldown_after_fill"`
}

// SymbolsConfig carries per-symbol corrections applied during Prepare.
//
//   - InitialOffset: additive correction to the reported venue position
//     (accounts for positions held outside the adapter's view).
//   - PredefinedOffset: additive correction to the computed offset
//     (hedges held at other external venues); does not affect cost basis.
type SymbolsConfig struct {
	InitialOffset    map[string]float64 `mapstructure:"initial_offset"`
	PredefinedOffset map[string]float64 `mapstructure:"predefined_offset"`
}

// PoolsConfig controls the on-chain LP pool readers. Zero amount skips the pool.
type PoolsConfig struct {
	JLPAmount float64 `mapstructure:"jlp_amount"`
	JLPURL    string  `mapstructure:"jlp_url"`
	ALPAmount float64 `mapstructure:"alp_amount"`
	ALPURL    string  `mapstructure:"alp_url"`
	// Aliases maps a pool's raw symbol to the user-facing symbol (e.g. WBTC -> BTC).
	Aliases map[string]string `mapstructure:"aliases"`
}

// VenueConfig points at the perpetual-futures venue REST/WS endpoints
// and credentials used to sign trading requests.
type VenueConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	WSURL     string `mapstructure:"ws_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	// ScaledSymbols lists "1000X" markets by user symbol and their scale factor (e.g. BONK -> 1000).
	ScaledSymbols map[string]float64 `mapstructure:"scaled_symbols"`
}

// RateLimitConfig tunes the venue REST token buckets.
//
//   - PriceCapacity/PriceRate: burst/refill for get_price, get_position reads.
//   - OrderCapacity/OrderRate: burst/refill for place_limit/place_market.
//   - CancelCapacity/CancelRate: burst/refill for cancel_all.
type RateLimitConfig struct {
	PriceCapacity  float64 `mapstructure:"price_capacity"`
	PriceRate      float64 `mapstructure:"price_rate"`
	OrderCapacity  float64 `mapstructure:"order_capacity"`
	OrderRate      float64 `mapstructure:"order_rate"`
	CancelCapacity float64 `mapstructure:"cancel_capacity"`
	CancelRate     float64 `mapstructure:"cancel_rate"`
}

// BreakerConfig tunes the circuit breakers: one independent instance per
// collaborator class (venue, pool, notifier), all built with these settings.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	HalfOpenTrials   int           `mapstructure:"half_open_trials"`
}

// NotifyConfig points at an operator-facing alert transport. An empty
// WebhookURL leaves the Notifier log-only.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MinOrderValueUSD is the venue-mandated minimum notional for a limit order.
const MinOrderValueUSD = 10.0

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: HEDGE_VENUE_API_KEY, HEDGE_VENUE_API_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("HEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("HEDGE_VENUE_API_KEY"); key != "" {
		cfg.Venue.APIKey = key
	}
	if secret := os.Getenv("HEDGE_VENUE_API_SECRET"); secret != "" {
		cfg.Venue.APISecret = secret
	}
	if os.Getenv("HEDGE_DRY_RUN") == "true" || os.Getenv("HEDGE_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = 10
	}
	if c.Thresholds.MinUSD <= 0 {
		return fmt.Errorf("thresholds.min_usd must be > 0")
	}
	if c.Thresholds.MaxUSD <= c.Thresholds.MinUSD {
		return fmt.Errorf("thresholds.max_usd must be > thresholds.min_usd")
	}
	if c.Thresholds.StepUSD <= 0 {
		return fmt.Errorf("thresholds.step_usd must be > 0")
	}
	if c.Hedge.CloseRatio <= 0 || c.Hedge.CloseRatio > 100 {
		return fmt.Errorf("hedge.close_ratio must be in (0, 100]")
	}
	if c.Hedge.Timeout <= 0 {
		return fmt.Errorf("hedge.timeout must be > 0")
	}
	if c.Hedge.CooldownAfterFill <= 0 {
		return fmt.Errorf("hedge.cooldown_after_fill must be > 0")
	}
	if c.Venue.BaseURL == "" {
		return fmt.Errorf("venue.base_url is required")
	}
	if c.Pools.JLPAmount == 0 && c.Pools.ALPAmount == 0 {
		return fmt.Errorf("at least one of pools.jlp_amount / pools.alp_amount must be > 0")
	}
	if c.RateLimit.PriceCapacity <= 0 {
		c.RateLimit.PriceCapacity, c.RateLimit.PriceRate = 150, 15
	}
	if c.RateLimit.OrderCapacity <= 0 {
		c.RateLimit.OrderCapacity, c.RateLimit.OrderRate = 350, 50
	}
	if c.RateLimit.CancelCapacity <= 0 {
		c.RateLimit.CancelCapacity, c.RateLimit.CancelRate = 300, 30
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.ResetTimeout <= 0 {
		c.Breaker.ResetTimeout = 30 * time.Second
	}
	if c.Breaker.HalfOpenTrials <= 0 {
		c.Breaker.HalfOpenTrials = 1
	}
	return nil
}
