package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowRateLimiter_DeniesWithinWindow(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewSlidingWindowRateLimiter(Config{Window: time.Second, Max: 5}, newMemoryStore(t))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		result, err := limiter.IsAllowed(ctx, "client", at(0))
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.IsAllowed(ctx, "client", at(500))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.Remaining)
	assert.NotNil(t, result.RetryAfter)
	assert.True(t, at(1500).Equal(result.ResetTime))
}

func TestSlidingWindowRateLimiter_AllowsAfterWindowSlides(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewSlidingWindowRateLimiter(Config{Window: time.Second, Max: 5}, newMemoryStore(t))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := limiter.IsAllowed(ctx, "client", at(0))
		require.NoError(t, err)
	}

	result, err := limiter.IsAllowed(ctx, "client", at(1001))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(4), result.Remaining)
}

func TestSlidingWindowRateLimiter_DeniedCallsAreCounted(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewSlidingWindowRateLimiter(Config{Window: time.Second, Max: 1}, newMemoryStore(t))
	require.NoError(t, err)

	r, err := limiter.IsAllowed(ctx, "client", at(0))
	require.NoError(t, err)
	assert.True(t, r.Allowed)

	r, err = limiter.IsAllowed(ctx, "client", at(600))
	require.NoError(t, err)
	assert.False(t, r.Allowed)

	// the first entry has expired but the denied one at 600 has not
	r, err = limiter.IsAllowed(ctx, "client", at(1200))
	require.NoError(t, err)
	assert.False(t, r.Allowed)
}

func TestSlidingWindowRateLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	limiter, err := NewSlidingWindowRateLimiter(Config{Window: time.Minute, Max: 1}, newMemoryStore(t))
	require.NoError(t, err)

	_, err = limiter.IsAllowed(ctx, "client", baseTime)
	require.NoError(t, err)
	require.NoError(t, limiter.Reset(ctx, "client"))

	r, err := limiter.IsAllowed(ctx, "client", baseTime)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
}

func TestSlidingWindowRateLimiter_StorageError(t *testing.T) {
	store := new(MockStorage)
	store.On("AddToList", mock.Anything, "client:sliding", baseTime.UnixMilli(), time.Second).Return(nil)
	store.On("RemoveOldFromList", mock.Anything, "client:sliding", baseTime.UnixMilli()-1000).Return(nil)
	store.On("GetListLength", mock.Anything, "client:sliding").Return(int64(0), assert.AnError)

	limiter, err := NewSlidingWindowRateLimiter(Config{Window: time.Second, Max: 1}, store)
	require.NoError(t, err)

	_, err = limiter.IsAllowed(context.Background(), "client", baseTime)
	assert.ErrorIs(t, err, assert.AnError)
	store.AssertExpectations(t)
}
