package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/aesthetiq/ratelimiter/internal/database"
	"github.com/aesthetiq/ratelimiter/internal/logging"
)

var databaseSchema = []string{
	`CREATE TABLE IF NOT EXISTS rate_limit_counters (
		limit_key TEXT PRIMARY KEY,
		count BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_values (
		limit_key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_lists (
		id TEXT PRIMARY KEY,
		limit_key TEXT NOT NULL,
		value BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_lists_key ON rate_limit_lists(limit_key, value)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_buckets (
		limit_key TEXT PRIMARY KEY,
		tokens DOUBLE PRECISION NOT NULL,
		last_refill BIGINT NOT NULL,
		last_leak BIGINT NOT NULL,
		queue_size BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
}

// DatabaseStorage persists limiter state in SQL tables. Expiry columns hold
// unix milliseconds and 0 means the row never expires. Expired rows are
// ignored on read and removed by Cleanup.
type DatabaseStorage struct {
	db     *database.DB
	now    func() time.Time
	logger *slog.Logger

	cron      *cron.Cron
	closeOnce sync.Once
}

var _ Storage = (*DatabaseStorage)(nil)

type DatabaseOption func(*DatabaseStorage)

func WithDatabaseClock(now func() time.Time) DatabaseOption {
	return func(s *DatabaseStorage) {
		s.now = now
	}
}

func WithDatabaseLogger(logger *slog.Logger) DatabaseOption {
	return func(s *DatabaseStorage) {
		s.logger = logging.Component(logger, "storage.database")
	}
}

// NewDatabaseStorage creates the tables if needed. The caller keeps
// ownership of db.
func NewDatabaseStorage(ctx context.Context, db *database.DB, opts ...DatabaseOption) (*DatabaseStorage, error) {
	if db == nil {
		return nil, errors.New("database storage requires a database handle")
	}

	s := &DatabaseStorage{
		db:     db,
		now:    time.Now,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := db.Migrate(ctx, databaseSchema...); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *DatabaseStorage) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *DatabaseStorage) expiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixMilli()
}

const liveRow = `(expires_at = 0 OR expires_at > ?)`

func (s *DatabaseStorage) Increment(ctx context.Context, key string, value int64, ttl time.Duration) (int64, error) {
	now := s.nowMillis()
	query := s.db.Rebind(`
		INSERT INTO rate_limit_counters (limit_key, count, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (limit_key) DO UPDATE SET
			count = CASE
				WHEN rate_limit_counters.expires_at > 0 AND rate_limit_counters.expires_at <= ? THEN excluded.count
				ELSE rate_limit_counters.count + excluded.count
			END,
			expires_at = CASE
				WHEN rate_limit_counters.expires_at > 0 AND rate_limit_counters.expires_at <= ? THEN excluded.expires_at
				ELSE rate_limit_counters.expires_at
			END
		RETURNING count`)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, key, value, s.expiresAt(ttl), now, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return count, nil
}

// Get reads plain values first and falls back to counters, matching a
// single keyspace store.
func (s *DatabaseStorage) Get(ctx context.Context, key string) (string, bool, error) {
	now := s.nowMillis()

	var value string
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT value FROM rate_limit_values WHERE limit_key = ? AND `+liveRow),
		key, now).Scan(&value)
	if err == nil {
		return value, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}

	var count int64
	err = s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT count FROM rate_limit_counters WHERE limit_key = ? AND `+liveRow),
		key, now).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return strconv.FormatInt(count, 10), true, nil
}

func (s *DatabaseStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO rate_limit_values (limit_key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (limit_key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at`),
		key, value, s.expiresAt(ttl))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *DatabaseStorage) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"rate_limit_counters", "rate_limit_values", "rate_limit_lists", "rate_limit_buckets"} {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM `+table+` WHERE limit_key = ?`), key); err != nil {
			return fmt.Errorf("delete %s from %s: %w", key, table, err)
		}
	}
	return tx.Commit()
}

func (s *DatabaseStorage) AddToList(ctx context.Context, key string, value int64, ttl time.Duration) error {
	expiresAt := s.expiresAt(ttl)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add to list %s: %w", key, err)
	}
	defer tx.Rollback()

	// an expired list starts over
	if _, err := tx.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM rate_limit_lists WHERE limit_key = ? AND expires_at > 0 AND expires_at <= ?`),
		key, s.nowMillis()); err != nil {
		return fmt.Errorf("add to list %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO rate_limit_lists (id, limit_key, value, expires_at) VALUES (?, ?, ?, ?)`),
		uuid.NewString(), key, value, expiresAt); err != nil {
		return fmt.Errorf("add to list %s: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx,
		s.db.Rebind(`UPDATE rate_limit_lists SET expires_at = ? WHERE limit_key = ?`),
		expiresAt, key); err != nil {
		return fmt.Errorf("add to list %s: %w", key, err)
	}

	return tx.Commit()
}

func (s *DatabaseStorage) RemoveOldFromList(ctx context.Context, key string, cutoff int64) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM rate_limit_lists WHERE limit_key = ? AND value < ?`),
		key, cutoff)
	if err != nil {
		return fmt.Errorf("remove old from list %s: %w", key, err)
	}
	return nil
}

func (s *DatabaseStorage) GetListLength(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT COUNT(*) FROM rate_limit_lists WHERE limit_key = ? AND `+liveRow),
		key, s.nowMillis()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("list length %s: %w", key, err)
	}
	return n, nil
}

func (s *DatabaseStorage) GetBucket(ctx context.Context, key string) (BucketState, error) {
	var state BucketState
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT tokens, last_refill, last_leak, queue_size
		FROM rate_limit_buckets
		WHERE limit_key = ? AND `+liveRow),
		key, s.nowMillis()).Scan(&state.Tokens, &state.LastRefill, &state.LastLeak, &state.QueueSize)
	if errors.Is(err, sql.ErrNoRows) {
		return BucketState{}, nil
	}
	if err != nil {
		return BucketState{}, fmt.Errorf("get bucket %s: %w", key, err)
	}
	return state, nil
}

func (s *DatabaseStorage) SetBucket(ctx context.Context, key string, state BucketState, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO rate_limit_buckets (limit_key, tokens, last_refill, last_leak, queue_size, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (limit_key) DO UPDATE SET
			tokens = excluded.tokens,
			last_refill = excluded.last_refill,
			last_leak = excluded.last_leak,
			queue_size = excluded.queue_size,
			expires_at = excluded.expires_at`),
		key, state.Tokens, state.LastRefill, state.LastLeak, state.QueueSize, s.expiresAt(ttl))
	if err != nil {
		return fmt.Errorf("set bucket %s: %w", key, err)
	}
	return nil
}

// Cleanup deletes every row that expired at or before now and returns the
// number of rows removed.
func (s *DatabaseStorage) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.UnixMilli()

	var total int64
	for _, table := range []string{"rate_limit_counters", "rate_limit_values", "rate_limit_lists", "rate_limit_buckets"} {
		res, err := s.db.ExecContext(ctx,
			s.db.Rebind(`DELETE FROM `+table+` WHERE expires_at > 0 AND expires_at <= ?`), cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// StartCleanup runs Cleanup on the given cron schedule until Close.
func (s *DatabaseStorage) StartCleanup(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		removed, err := s.Cleanup(ctx, s.now())
		if err != nil {
			s.logger.Error("cleanup failed", "error", err)
			return
		}
		if removed > 0 {
			s.logger.Debug("expired rows removed", "rows", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	s.cron = c
	c.Start()
	return nil
}

func (s *DatabaseStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the cleanup schedule. The database handle is left open.
func (s *DatabaseStorage) Close() error {
	s.closeOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
	})
	return nil
}
