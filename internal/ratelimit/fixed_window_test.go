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

func TestNewFixedWindowRateLimiter(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{name: "valid config", config: Config{Window: time.Second, Max: 3}},
		{name: "zero max", config: Config{Window: time.Second, Max: 0}, expectError: true},
		{name: "zero window", config: Config{Window: 0, Max: 3}, expectError: true},
		{name: "sub-millisecond window", config: Config{Window: 500 * time.Microsecond, Max: 5}, expectError: true},
		{name: "one millisecond window", config: Config{Window: time.Millisecond, Max: 5}},
	}

	store := newMemoryStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := NewFixedWindowRateLimiter(tt.config, store)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, limiter)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, limiter)
			}
		})
	}

	_, err := NewFixedWindowRateLimiter(Config{Window: time.Second, Max: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFixedWindowRateLimiter_MillisecondWindow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage(
		storage.WithSweepInterval(0),
		storage.WithClock(func() time.Time { return at(0) }),
	)
	t.Cleanup(func() { store.Close() })

	limiter, err := NewFixedWindowRateLimiter(Config{Window: time.Millisecond, Max: 1}, store)
	require.NoError(t, err)

	result, err := limiter.IsAllowed(ctx, "client", at(10))
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.IsAllowed(ctx, "client", at(10))
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = limiter.IsAllowed(ctx, "client", at(11))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestFixedWindowRateLimiter_IsAllowed(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewFixedWindowRateLimiter(Config{Window: time.Second, Max: 3}, newMemoryStore(t))
	require.NoError(t, err)

	for i := int64(0); i < 3; i++ {
		result, err := limiter.IsAllowed(ctx, "client", at(100+i))
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 2-i, result.Remaining)
		assert.Equal(t, int64(3), result.Limit)
		assert.True(t, at(1000).Equal(result.ResetTime))
		assert.Nil(t, result.RetryAfter)
	}

	result, err := limiter.IsAllowed(ctx, "client", at(400))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)
	require.NotNil(t, result.RetryAfter)
	assert.Equal(t, 600*time.Millisecond, *result.RetryAfter)

	// a new window starts with a fresh counter
	result, err = limiter.IsAllowed(ctx, "client", at(1000))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(2), result.Remaining)
}

func TestFixedWindowRateLimiter_BoundaryBurst(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewFixedWindowRateLimiter(Config{Window: time.Second, Max: 2}, newMemoryStore(t))
	require.NoError(t, err)

	// 2 at the end of one window and 2 at the start of the next are all allowed
	for _, ms := range []int64{998, 999, 1000, 1001} {
		result, err := limiter.IsAllowed(ctx, "client", at(ms))
		require.NoError(t, err)
		assert.True(t, result.Allowed, "t=%d", ms)
	}
}

func TestFixedWindowRateLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewFixedWindowRateLimiter(Config{Window: time.Minute, Max: 1}, newMemoryStore(t))
	require.NoError(t, err)

	r1, err := limiter.IsAllowed(ctx, "a", baseTime)
	require.NoError(t, err)
	r2, err := limiter.IsAllowed(ctx, "b", baseTime)
	require.NoError(t, err)

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}

func TestFixedWindowRateLimiter_StorageError(t *testing.T) {
	store := new(MockStorage)
	store.On("Increment", mock.Anything, mock.AnythingOfType("string"), int64(1), time.Second).
		Return(int64(0), assert.AnError)

	limiter, err := NewFixedWindowRateLimiter(Config{Window: time.Second, Max: 1}, store)
	require.NoError(t, err)

	_, err = limiter.IsAllowed(context.Background(), "client", baseTime)
	assert.ErrorIs(t, err, assert.AnError)
	store.AssertExpectations(t)
}

func TestFixedWindowRateLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewFixedWindowRateLimiter(Config{Window: time.Hour, Max: 1}, newMemoryStore(t))
	require.NoError(t, err)

	now := time.Now()
	limiter.now = func() time.Time { return now }

	_, err = limiter.IsAllowed(ctx, "client", now)
	require.NoError(t, err)
	result, err := limiter.IsAllowed(ctx, "client", now)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	require.NoError(t, limiter.Reset(ctx, "client"))

	result, err = limiter.IsAllowed(ctx, "client", now)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
