package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aesthetiq/ratelimiter/internal/storage"
)

// SlidingWindowRateLimiter keeps a timestamp log per identity. Denied
// requests are logged too, so a client that keeps hammering stays limited.
type SlidingWindowRateLimiter struct {
	window  time.Duration
	max     int64
	storage storage.Storage
}

func NewSlidingWindowRateLimiter(config Config, store storage.Storage) (*SlidingWindowRateLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: storage is required", ErrInvalidConfig)
	}

	return &SlidingWindowRateLimiter{
		window:  config.Window,
		max:     config.Max,
		storage: store,
	}, nil
}

func (sw *SlidingWindowRateLimiter) IsAllowed(ctx context.Context, key string, timestamp time.Time) (RateLimitResult, error) {
	return slidingWindowCheck(ctx, sw.storage, key, timestamp, sw.window, sw.max)
}

func (sw *SlidingWindowRateLimiter) Reset(ctx context.Context, key string) error {
	return sw.storage.Delete(ctx, key+slidingKeySuffix)
}

func slidingWindowCheck(ctx context.Context, store storage.Storage, key string, timestamp time.Time, window time.Duration, max int64) (RateLimitResult, error) {
	listKey := key + slidingKeySuffix
	nowMs := timestamp.UnixMilli()

	if err := store.AddToList(ctx, listKey, nowMs, window); err != nil {
		return RateLimitResult{}, fmt.Errorf("sliding window: %w", err)
	}
	if err := store.RemoveOldFromList(ctx, listKey, nowMs-window.Milliseconds()); err != nil {
		return RateLimitResult{}, fmt.Errorf("sliding window: %w", err)
	}
	count, err := store.GetListLength(ctx, listKey)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("sliding window: %w", err)
	}

	resetTime := timestamp.Add(window)
	result := RateLimitResult{
		Allowed:   count <= max,
		Limit:     max,
		Remaining: remainingOf(max, count),
		ResetTime: resetTime,
		Window:    window,
		Metadata: map[string]interface{}{
			"current_count": count,
		},
	}

	if !result.Allowed {
		result.RetryAfter = retryAfterUntil(resetTime, timestamp)
	}
	return result, nil
}

type SlidingWindowConstructor struct{}

func (c *SlidingWindowConstructor) Name() string {
	return string(SlidingWindowStrategy)
}

func (c *SlidingWindowConstructor) NewFromConfig(config Config, store storage.Storage) (RateLimiter, error) {
	limiter, err := NewSlidingWindowRateLimiter(config, store)
	if err != nil {
		return nil, fmt.Errorf("sliding window strategy: %w", err)
	}
	return limiter, nil
}
