package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aesthetiq/ratelimiter/internal/storage"
)

func TestNewTokenBucketRateLimiter(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:   "valid config",
			config: Config{Window: 10 * time.Second, Max: 10},
		},
		{
			name:        "invalid bucket size",
			config:      Config{Window: 10 * time.Second, Max: 0},
			expectError: true,
		},
		{
			name:        "invalid window",
			config:      Config{Window: 0, Max: 10},
			expectError: true,
		},
	}

	store := newMemoryStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := NewTokenBucketRateLimiter(tt.config, store)

			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, limiter)
			} else {
				assert.NoError(t, err)
				require.NotNil(t, limiter)
				assert.Equal(t, tt.config.Max, limiter.bucketSize)
				assert.Equal(t, 1.0, limiter.refillRate)
			}
		})
	}
}

func TestTokenBucketRateLimiter_IsAllowed(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewTokenBucketRateLimiter(Config{Window: 10 * time.Second, Max: 10}, newMemoryStore(t))
	require.NoError(t, err)

	for i := int64(1); i <= 10; i++ {
		result, err := limiter.IsAllowed(ctx, "client", at(0))
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i)
		assert.Equal(t, 10-i, result.Remaining)
		assert.Equal(t, int64(10), result.Limit)
		assert.Nil(t, result.RetryAfter)
	}

	result, err := limiter.IsAllowed(ctx, "client", at(0))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)
	require.NotNil(t, result.RetryAfter)
	assert.Equal(t, time.Second, *result.RetryAfter)
	assert.True(t, at(10000).Equal(result.ResetTime))

	// one refill interval later exactly one token is available
	result, err = limiter.IsAllowed(ctx, "client", at(1000))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)

	result, err = limiter.IsAllowed(ctx, "client", at(1000))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestTokenBucketRateLimiter_RefillCapsAtBucketSize(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewTokenBucketRateLimiter(Config{Window: time.Second, Max: 5}, newMemoryStore(t))
	require.NoError(t, err)

	_, err = limiter.IsAllowed(ctx, "client", at(0))
	require.NoError(t, err)

	result, err := limiter.IsAllowed(ctx, "client", at(60000))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(4), result.Remaining)
}

func TestTokenBucketRateLimiter_IsAllowedN(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewTokenBucketRateLimiter(Config{Window: 10 * time.Second, Max: 10}, newMemoryStore(t))
	require.NoError(t, err)

	result, err := limiter.IsAllowedN(ctx, "client", at(0), 8)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(2), result.Remaining)

	result, err = limiter.IsAllowedN(ctx, "client", at(0), 5)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(2), result.Remaining, "a denied check consumes nothing")
	require.NotNil(t, result.RetryAfter)
	assert.Equal(t, 3*time.Second, *result.RetryAfter)

	_, err = limiter.IsAllowedN(ctx, "client", at(0), 0)
	assert.ErrorIs(t, err, ErrInvalidTokenCount)
}

func TestTokenBucketRateLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewTokenBucketRateLimiter(Config{Window: time.Minute, Max: 1}, newMemoryStore(t))
	require.NoError(t, err)

	_, err = limiter.IsAllowed(ctx, "client", at(0))
	require.NoError(t, err)
	result, err := limiter.IsAllowed(ctx, "client", at(0))
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	require.NoError(t, limiter.Reset(ctx, "client"))

	result, err = limiter.IsAllowed(ctx, "client", at(0))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTokenBucketRateLimiter_StorageErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*MockStorage)
	}{
		{
			name: "get bucket fails",
			setup: func(s *MockStorage) {
				s.On("GetBucket", mock.Anything, "client:bucket").Return(storage.BucketState{}, assert.AnError)
			},
		},
		{
			name: "set bucket fails",
			setup: func(s *MockStorage) {
				s.On("GetBucket", mock.Anything, "client:bucket").Return(storage.BucketState{}, nil)
				s.On("SetBucket", mock.Anything, "client:bucket", mock.Anything, time.Second).Return(assert.AnError)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStorage)
			tt.setup(store)

			limiter, err := NewTokenBucketRateLimiter(Config{Window: time.Second, Max: 1}, store)
			require.NoError(t, err)

			_, err = limiter.IsAllowed(context.Background(), "client", at(0))
			assert.ErrorIs(t, err, assert.AnError)
			store.AssertExpectations(t)
		})
	}
}

func TestTokenBucketRateLimiter_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewTokenBucketRateLimiter(Config{Window: time.Hour, Max: 50}, newMemoryStore(t))
	require.NoError(t, err)

	results := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			r, err := limiter.IsAllowed(ctx, "client", at(0))
			results <- err == nil && r.Allowed
		}()
	}

	allowed := 0
	for i := 0; i < 100; i++ {
		if <-results {
			allowed++
		}
	}
	assert.Equal(t, 50, allowed)
}
