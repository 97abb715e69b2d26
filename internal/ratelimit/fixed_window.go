package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aesthetiq/ratelimiter/internal/storage"
)

// FixedWindowRateLimiter counts requests in aligned windows. Bursts across
// a window boundary are not smoothed.
type FixedWindowRateLimiter struct {
	window  time.Duration
	max     int64
	storage storage.Storage
	now     func() time.Time
}

func NewFixedWindowRateLimiter(config Config, store storage.Storage) (*FixedWindowRateLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: storage is required", ErrInvalidConfig)
	}

	return &FixedWindowRateLimiter{
		window:  config.Window,
		max:     config.Max,
		storage: store,
		now:     time.Now,
	}, nil
}

func (fw *FixedWindowRateLimiter) windowStart(timestamp time.Time) int64 {
	windowMs := fw.window.Milliseconds()
	return (timestamp.UnixMilli() / windowMs) * windowMs
}

func (fw *FixedWindowRateLimiter) IsAllowed(ctx context.Context, key string, timestamp time.Time) (RateLimitResult, error) {
	windowStart := fw.windowStart(timestamp)
	windowKey := fmt.Sprintf("%s:%d", key, windowStart)

	count, err := fw.storage.Increment(ctx, windowKey, 1, fw.window)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("fixed window: %w", err)
	}

	resetTime := time.UnixMilli(windowStart + fw.window.Milliseconds())
	result := RateLimitResult{
		Allowed:   count <= fw.max,
		Limit:     fw.max,
		Remaining: remainingOf(fw.max, count),
		ResetTime: resetTime,
		Window:    fw.window,
		Metadata: map[string]interface{}{
			"window_start":  windowStart,
			"current_count": count,
		},
	}

	if !result.Allowed {
		result.RetryAfter = retryAfterUntil(resetTime, timestamp)
	}
	return result, nil
}

// Reset clears the window that is current now.
func (fw *FixedWindowRateLimiter) Reset(ctx context.Context, key string) error {
	return fw.storage.Delete(ctx, fmt.Sprintf("%s:%d", key, fw.windowStart(fw.now())))
}

type FixedWindowConstructor struct {
	name Strategy
}

func (c *FixedWindowConstructor) Name() string {
	if c.name == "" {
		return string(FixedWindowStrategy)
	}
	return string(c.name)
}

func (c *FixedWindowConstructor) NewFromConfig(config Config, store storage.Storage) (RateLimiter, error) {
	limiter, err := NewFixedWindowRateLimiter(config, store)
	if err != nil {
		return nil, fmt.Errorf("fixed window strategy: %w", err)
	}
	return limiter, nil
}
