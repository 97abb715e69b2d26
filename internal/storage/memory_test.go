package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_ConcurrentIncrement(t *testing.T) {
	m := NewMemoryStorage(WithSweepInterval(0))
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Increment(context.Background(), "k", 1, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, ok, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "50", v)
}

func TestMemoryStorage_IncrementNonInteger(t *testing.T) {
	m := NewMemoryStorage(WithSweepInterval(0))
	defer m.Close()

	require.NoError(t, m.Set(context.Background(), "k", "abc", 0))
	_, err := m.Increment(context.Background(), "k", 1, time.Minute)
	assert.ErrorIs(t, err, ErrNotInteger)
}

func TestMemoryStorage_Sweep(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryStorage(WithClock(clock.Now), WithSweepInterval(0))
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", time.Second))
	require.NoError(t, m.Set(ctx, "forever", "1", 0))
	require.NoError(t, m.AddToList(ctx, "l", 1, time.Second))
	require.NoError(t, m.SetBucket(ctx, "b", BucketState{Tokens: 1}, time.Second))
	assert.Equal(t, 4, m.Len())

	clock.Advance(time.Minute)
	m.Sweep()
	assert.Equal(t, 1, m.Len())
}

func TestMemoryStorage_CloseIdempotent(t *testing.T) {
	m := NewMemoryStorage(WithSweepInterval(time.Millisecond))
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}
