package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aesthetiq/ratelimiter/internal/storage"
)

// LeakyBucketRateLimiter admits a request while the queue is below max.
// The queue drains max units per window in whole units.
type LeakyBucketRateLimiter struct {
	window   time.Duration
	max      int64
	leakRate float64
	storage  storage.Storage
	locks    keyLocks
}

func NewLeakyBucketRateLimiter(config Config, store storage.Storage) (*LeakyBucketRateLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: storage is required", ErrInvalidConfig)
	}

	return &LeakyBucketRateLimiter{
		window:   config.Window,
		max:      config.Max,
		leakRate: perSecond(config.Max, config.Window),
		storage:  store,
	}, nil
}

// leak drains whole units. LastLeak only advances by the time those units
// account for, so partial progress carries over to the next call.
func (lb *LeakyBucketRateLimiter) leak(bucket *storage.BucketState, nowMs int64) {
	if bucket.LastLeak == 0 || bucket.QueueSize == 0 {
		bucket.LastLeak = maxInt64(bucket.LastLeak, nowMs)
		return
	}

	leaked := int64(math.Floor(elapsedSeconds(bucket.LastLeak, nowMs) * lb.leakRate))
	if leaked <= 0 {
		return
	}

	if leaked >= bucket.QueueSize {
		bucket.QueueSize = 0
		bucket.LastLeak = nowMs
		return
	}

	bucket.QueueSize -= leaked
	bucket.LastLeak += int64(float64(leaked) / lb.leakRate * millisecondsPerSecond)
}

func (lb *LeakyBucketRateLimiter) IsAllowed(ctx context.Context, key string, timestamp time.Time) (RateLimitResult, error) {
	bucketKey := key + leakyKeySuffix
	unlock := lb.locks.lock(bucketKey)
	defer unlock()

	bucket, err := lb.storage.GetBucket(ctx, bucketKey)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("leaky bucket: %w", err)
	}

	lb.leak(&bucket, timestamp.UnixMilli())

	allowed := bucket.QueueSize < lb.max
	if allowed {
		bucket.QueueSize++
	}

	if err := lb.storage.SetBucket(ctx, bucketKey, bucket, lb.window); err != nil {
		return RateLimitResult{}, fmt.Errorf("leaky bucket: %w", err)
	}

	result := RateLimitResult{
		Allowed:   allowed,
		Limit:     lb.max,
		Remaining: remainingOf(lb.max, bucket.QueueSize),
		ResetTime: timestamp.Add(durationForUnits(float64(bucket.QueueSize), lb.leakRate)),
		Window:    lb.window,
		Metadata: map[string]interface{}{
			"queue_size": bucket.QueueSize,
			"leak_rate":  lb.leakRate,
		},
	}

	if !allowed {
		retryAfter := durationForUnits(float64(bucket.QueueSize-lb.max+1), lb.leakRate)
		result.RetryAfter = &retryAfter
	}
	return result, nil
}

// Release removes one queued unit once the request has completed.
func (lb *LeakyBucketRateLimiter) Release(ctx context.Context, key string, timestamp time.Time) error {
	bucketKey := key + leakyKeySuffix
	unlock := lb.locks.lock(bucketKey)
	defer unlock()

	bucket, err := lb.storage.GetBucket(ctx, bucketKey)
	if err != nil {
		return fmt.Errorf("leaky bucket release: %w", err)
	}
	if bucket.IsZero() {
		return nil
	}

	lb.leak(&bucket, timestamp.UnixMilli())
	if bucket.QueueSize > 0 {
		bucket.QueueSize--
	}

	if err := lb.storage.SetBucket(ctx, bucketKey, bucket, lb.window); err != nil {
		return fmt.Errorf("leaky bucket release: %w", err)
	}
	return nil
}

func (lb *LeakyBucketRateLimiter) Reset(ctx context.Context, key string) error {
	return lb.storage.Delete(ctx, key+leakyKeySuffix)
}

type LeakyBucketConstructor struct{}

func (c *LeakyBucketConstructor) Name() string {
	return string(LeakyBucketStrategy)
}

func (c *LeakyBucketConstructor) NewFromConfig(config Config, store storage.Storage) (RateLimiter, error) {
	limiter, err := NewLeakyBucketRateLimiter(config, store)
	if err != nil {
		return nil, fmt.Errorf("leaky bucket strategy: %w", err)
	}
	return limiter, nil
}
