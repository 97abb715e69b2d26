package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrUnsupportedTokens   = errors.New("rate limiter does not support multi-token checks")
	ErrInvalidTokenCount   = errors.New("token count must be at least 1")
	ErrUnsupportedStrategy = errors.New("unsupported rate limiter strategy")
)

type Strategy string

const (
	FixedWindowStrategy   Strategy = "fixed_window"
	SlidingWindowStrategy Strategy = "sliding_window"
	TokenBucketStrategy   Strategy = "token_bucket"
	LeakyBucketStrategy   Strategy = "leaky_bucket"
	// FixedCounterStrategy is an alias of FixedWindowStrategy.
	FixedCounterStrategy Strategy = "fixed_counter"
	AdaptiveStrategy     Strategy = "adaptive"
)

// Config is the limit for one route category or preset.
type Config struct {
	Window   time.Duration `json:"window"`
	Max      int64         `json:"max"`
	Strategy Strategy      `json:"strategy,omitempty"`
	Message  string        `json:"message,omitempty"`
}

func (c Config) Validate() error {
	if c.Max < 1 {
		return fmt.Errorf("%w: max must be at least 1, got %d", ErrInvalidConfig, c.Max)
	}
	if c.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be at least 1ms, got %s", ErrInvalidConfig, c.Window)
	}
	return nil
}

// EffectiveStrategy returns the strategy, defaulting to the sliding window.
func (c Config) EffectiveStrategy() Strategy {
	if c.Strategy == "" {
		return SlidingWindowStrategy
	}
	return c.Strategy
}

type RateLimitResult struct {
	Allowed    bool                   `json:"allowed"`
	Limit      int64                  `json:"limit"`
	Remaining  int64                  `json:"remaining"`
	ResetTime  time.Time              `json:"resetTime"`
	RetryAfter *time.Duration         `json:"retryAfter,omitempty"`
	Window     time.Duration          `json:"window"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type RateLimiter interface {
	IsAllowed(ctx context.Context, key string, timestamp time.Time) (RateLimitResult, error)
	Reset(ctx context.Context, key string) error
}

// TokenLimiter can charge more than one unit per check.
type TokenLimiter interface {
	RateLimiter
	IsAllowedN(ctx context.Context, key string, timestamp time.Time, tokens int64) (RateLimitResult, error)
}

// Releaser gives back a unit once the guarded work has finished.
type Releaser interface {
	Release(ctx context.Context, key string, timestamp time.Time) error
}

// LoadProvider reports system load in [0, 1].
type LoadProvider interface {
	SystemLoad(ctx context.Context) (float64, error)
}

type unwrapper interface {
	Unwrap() RateLimiter
}

// Core returns the innermost limiter behind any decorators.
func Core(l RateLimiter) RateLimiter {
	for {
		u, ok := l.(unwrapper)
		if !ok {
			return l
		}
		l = u.Unwrap()
	}
}

func AsReleaser(l RateLimiter) (Releaser, bool) {
	r, ok := Core(l).(Releaser)
	return r, ok
}

// AsTokenLimiter returns l itself when its core supports multi-token
// checks, so decorators stay in the call path.
func AsTokenLimiter(l RateLimiter) (TokenLimiter, bool) {
	if _, ok := Core(l).(TokenLimiter); !ok {
		return nil, false
	}
	t, ok := l.(TokenLimiter)
	return t, ok
}
