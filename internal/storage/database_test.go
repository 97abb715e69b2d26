package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aesthetiq/ratelimiter/internal/database"
)

func TestDatabaseStorage_Cleanup(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	db, err := database.Open(ctx, database.Config{
		Driver: database.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "cleanup.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	s, err := NewDatabaseStorage(ctx, db, WithDatabaseClock(clock.Now))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Increment(ctx, "c", 1, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "v", "x", time.Second))
	require.NoError(t, s.Set(ctx, "forever", "x", 0))
	require.NoError(t, s.AddToList(ctx, "l", 1, time.Second))
	require.NoError(t, s.SetBucket(ctx, "b", BucketState{Tokens: 1}, time.Second))

	clock.Advance(time.Minute)
	removed, err := s.Cleanup(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	_, ok, err := s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDatabaseStorage_StartCleanupInvalidSchedule(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Driver: database.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "cron.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	s, err := NewDatabaseStorage(ctx, db)
	require.NoError(t, err)

	assert.Error(t, s.StartCleanup("whenever"))
	assert.NoError(t, s.StartCleanup("@every 1h"))
	assert.NoError(t, s.Close())
}
