package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aesthetiq/ratelimiter/internal/storage"
)

// TokenBucketRateLimiter refills max tokens per window continuously. A
// bucket that has never been seen starts full.
type TokenBucketRateLimiter struct {
	window     time.Duration
	bucketSize int64
	refillRate float64
	storage    storage.Storage
	locks      keyLocks
}

func NewTokenBucketRateLimiter(config Config, store storage.Storage) (*TokenBucketRateLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: storage is required", ErrInvalidConfig)
	}

	return &TokenBucketRateLimiter{
		window:     config.Window,
		bucketSize: config.Max,
		refillRate: perSecond(config.Max, config.Window),
		storage:    store,
	}, nil
}

func (tb *TokenBucketRateLimiter) IsAllowed(ctx context.Context, key string, timestamp time.Time) (RateLimitResult, error) {
	return tb.IsAllowedN(ctx, key, timestamp, 1)
}

func (tb *TokenBucketRateLimiter) IsAllowedN(ctx context.Context, key string, timestamp time.Time, tokens int64) (RateLimitResult, error) {
	if tokens < 1 {
		return RateLimitResult{}, ErrInvalidTokenCount
	}

	bucketKey := key + bucketKeySuffix
	unlock := tb.locks.lock(bucketKey)
	defer unlock()

	bucket, err := tb.storage.GetBucket(ctx, bucketKey)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("token bucket: %w", err)
	}

	nowMs := timestamp.UnixMilli()
	if bucket.LastRefill == 0 {
		bucket.Tokens = float64(tb.bucketSize)
	} else {
		refilled := elapsedSeconds(bucket.LastRefill, nowMs) * tb.refillRate
		bucket.Tokens = math.Min(float64(tb.bucketSize), bucket.Tokens+refilled)
	}
	if nowMs > bucket.LastRefill {
		bucket.LastRefill = nowMs
	}

	allowed := bucket.Tokens >= float64(tokens)
	if allowed {
		bucket.Tokens -= float64(tokens)
	}

	if err := tb.storage.SetBucket(ctx, bucketKey, bucket, tb.window); err != nil {
		return RateLimitResult{}, fmt.Errorf("token bucket: %w", err)
	}

	fullIn := durationForUnits(float64(tb.bucketSize)-bucket.Tokens, tb.refillRate)
	result := RateLimitResult{
		Allowed:   allowed,
		Limit:     tb.bucketSize,
		Remaining: int64(math.Floor(bucket.Tokens)),
		ResetTime: timestamp.Add(fullIn),
		Window:    tb.window,
		Metadata: map[string]interface{}{
			"tokens":      bucket.Tokens,
			"refill_rate": tb.refillRate,
		},
	}

	if !allowed {
		retryAfter := durationForUnits(float64(tokens)-bucket.Tokens, tb.refillRate)
		result.RetryAfter = &retryAfter
	}
	return result, nil
}

func (tb *TokenBucketRateLimiter) Reset(ctx context.Context, key string) error {
	return tb.storage.Delete(ctx, key+bucketKeySuffix)
}

type TokenBucketConstructor struct{}

func (c *TokenBucketConstructor) Name() string {
	return string(TokenBucketStrategy)
}

func (c *TokenBucketConstructor) NewFromConfig(config Config, store storage.Storage) (RateLimiter, error) {
	limiter, err := NewTokenBucketRateLimiter(config, store)
	if err != nil {
		return nil, fmt.Errorf("token bucket strategy: %w", err)
	}
	return limiter, nil
}
