package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendDatabase = "database"
)

var ErrNotInteger = errors.New("value is not an integer")

// Storage is the state contract shared by every rate limiting algorithm.
// Implementations must make Increment atomic for concurrent callers on the
// same key. A ttl <= 0 means the key does not expire.
type Storage interface {
	// Increment adds value to the counter at key and returns the new total.
	// The ttl is applied only when the counter is created, so later
	// increments never extend the window.
	Increment(ctx context.Context, key string, value int64, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// AddToList appends value to the list at key and refreshes its ttl.
	AddToList(ctx context.Context, key string, value int64, ttl time.Duration) error
	// RemoveOldFromList drops every entry strictly below cutoff.
	RemoveOldFromList(ctx context.Context, key string, cutoff int64) error
	GetListLength(ctx context.Context, key string) (int64, error)

	// GetBucket returns the zero state for a missing or unreadable bucket.
	GetBucket(ctx context.Context, key string) (BucketState, error)
	SetBucket(ctx context.Context, key string, state BucketState, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// BucketState is the persisted state of a token or leaky bucket. Times are
// unix milliseconds.
type BucketState struct {
	Tokens     float64 `json:"tokens"`
	LastRefill int64   `json:"lastRefill"`
	LastLeak   int64   `json:"lastLeak,omitempty"`
	QueueSize  int64   `json:"queueSize,omitempty"`
}

func (b BucketState) IsZero() bool {
	return b == BucketState{}
}

func encodeBucket(state BucketState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeBucket treats malformed data as an empty bucket.
func decodeBucket(raw string) BucketState {
	var state BucketState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return BucketState{}
	}
	return state
}

func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
