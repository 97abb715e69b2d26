package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCollector struct {
	mock.Mock
}

func (m *MockCollector) RecordRateLimitDecision(strategy string, allowed bool) {
	m.Called(strategy, allowed)
}

func (m *MockCollector) RecordRateLimitDuration(strategy string, duration time.Duration) {
	m.Called(strategy, duration)
}

func (m *MockCollector) RecordFailOpen(category string) {
	m.Called(category)
}

func (m *MockCollector) RecordStorageOperation(backend, operation string, duration time.Duration, err error) {
	m.Called(backend, operation, duration, err)
}

func (m *MockCollector) SetStorageFallback(requested, active string, degraded bool) {
	m.Called(requested, active, degraded)
}

func (m *MockCollector) RecordDDoSBlock(reason string) {
	m.Called(reason)
}

func (m *MockCollector) RecordHTTPRequest(route string, status int, duration time.Duration) {
	m.Called(route, status, duration)
}

func TestMetricsDecorator_RecordsDecision(t *testing.T) {
	ctx := context.Background()
	inner := &MockRateLimiterForFactory{}
	inner.On("IsAllowed", mock.Anything, "client", baseTime).Return(RateLimitResult{Allowed: false, Limit: 5}, nil)

	collector := &MockCollector{}
	collector.On("RecordRateLimitDuration", "token_bucket", mock.AnythingOfType("time.Duration")).Once()
	collector.On("RecordRateLimitDecision", "token_bucket", false).Once()

	decorator := NewMetricsDecorator(inner, collector, "token_bucket")
	result, err := decorator.IsAllowed(ctx, "client", baseTime)

	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(5), result.Limit)
	inner.AssertExpectations(t)
	collector.AssertExpectations(t)
}

func TestMetricsDecorator_ErrorSkipsDecision(t *testing.T) {
	inner := &MockRateLimiterForFactory{}
	inner.On("IsAllowed", mock.Anything, "client", baseTime).Return(RateLimitResult{}, assert.AnError)

	collector := &MockCollector{}
	collector.On("RecordRateLimitDuration", "fixed_window", mock.AnythingOfType("time.Duration")).Once()

	decorator := NewMetricsDecorator(inner, collector, "fixed_window")
	_, err := decorator.IsAllowed(context.Background(), "client", baseTime)

	assert.ErrorIs(t, err, assert.AnError)
	collector.AssertNotCalled(t, "RecordRateLimitDecision", mock.Anything, mock.Anything)
	collector.AssertExpectations(t)
}

func TestMetricsDecorator_Reset(t *testing.T) {
	inner := &MockRateLimiterForFactory{}
	inner.On("Reset", mock.Anything, "client").Return(nil)

	decorator := NewMetricsDecorator(inner, &MockCollector{}, "sliding_window")
	assert.NoError(t, decorator.Reset(context.Background(), "client"))
	inner.AssertExpectations(t)
}

func TestMetricsDecorator_IsAllowedN(t *testing.T) {
	ctx := context.Background()
	collector := &MockCollector{}
	collector.On("RecordRateLimitDuration", mock.Anything, mock.Anything)
	collector.On("RecordRateLimitDecision", mock.Anything, mock.Anything)

	bucket, err := NewTokenBucketRateLimiter(Config{Window: time.Minute, Max: 10}, newMemoryStore(t))
	require.NoError(t, err)

	decorated := NewMetricsDecorator(bucket, collector, "token_bucket")
	tokens, ok := AsTokenLimiter(decorated)
	require.True(t, ok)

	result, err := tokens.IsAllowedN(ctx, "client", baseTime, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.Remaining)

	window, err := NewFixedWindowRateLimiter(Config{Window: time.Minute, Max: 10}, newMemoryStore(t))
	require.NoError(t, err)

	plain := NewMetricsDecorator(window, collector, "fixed_window")
	_, ok = AsTokenLimiter(plain)
	assert.False(t, ok)

	_, err = plain.IsAllowedN(ctx, "client", baseTime, 2)
	assert.ErrorIs(t, err, ErrUnsupportedTokens)
}

func TestCore(t *testing.T) {
	bucket, err := NewTokenBucketRateLimiter(Config{Window: time.Minute, Max: 10}, newMemoryStore(t))
	require.NoError(t, err)

	wrapped := NewMetricsDecorator(NewMetricsDecorator(bucket, &MockCollector{}, "a"), &MockCollector{}, "b")
	assert.Same(t, bucket, Core(wrapped))
	assert.Same(t, bucket, Core(bucket))
}
