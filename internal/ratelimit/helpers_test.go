package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aesthetiq/ratelimiter/internal/storage"
)

var baseTime = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newMemoryStore(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	s := storage.NewMemoryStorage(storage.WithSweepInterval(0))
	t.Cleanup(func() { s.Close() })
	return s
}

func at(ms int64) time.Time {
	return baseTime.Add(time.Duration(ms) * time.Millisecond)
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Increment(ctx context.Context, key string, value int64, ttl time.Duration) (int64, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockStorage) AddToList(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *MockStorage) RemoveOldFromList(ctx context.Context, key string, cutoff int64) error {
	return m.Called(ctx, key, cutoff).Error(0)
}

func (m *MockStorage) GetListLength(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) GetBucket(ctx context.Context, key string) (storage.BucketState, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(storage.BucketState), args.Error(1)
}

func (m *MockStorage) SetBucket(ctx context.Context, key string, state storage.BucketState, ttl time.Duration) error {
	return m.Called(ctx, key, state, ttl).Error(0)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStorage) Close() error {
	return m.Called().Error(0)
}
