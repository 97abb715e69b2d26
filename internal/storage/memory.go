package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memoryValue struct {
	value     string
	expiresAt time.Time
}

type memoryList struct {
	// values is kept sorted ascending so pruning is a prefix cut
	values    []int64
	expiresAt time.Time
}

type memoryBucket struct {
	state     BucketState
	expiresAt time.Time
}

// MemoryStorage keeps all state in process. It is only correct for a
// single instance deployment.
type MemoryStorage struct {
	mu      sync.Mutex
	values  map[string]memoryValue
	lists   map[string]*memoryList
	buckets map[string]memoryBucket

	now           func() time.Time
	sweepInterval time.Duration
	done          chan struct{}
	closeOnce     sync.Once
}

var _ Storage = (*MemoryStorage)(nil)

type MemoryOption func(*MemoryStorage)

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStorage) {
		m.now = now
	}
}

// WithSweepInterval sets how often expired entries are evicted. Zero
// disables the background sweep.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *MemoryStorage) {
		m.sweepInterval = d
	}
}

func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	m := &MemoryStorage{
		values:        make(map[string]memoryValue),
		lists:         make(map[string]*memoryList),
		buckets:       make(map[string]memoryBucket),
		now:           time.Now,
		sweepInterval: 5 * time.Minute,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.sweepInterval > 0 {
		go m.sweepLoop()
	}
	return m
}

func (m *MemoryStorage) Increment(ctx context.Context, key string, value int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.values[key]
	if !ok || expired(entry.expiresAt, now) {
		m.values[key] = memoryValue{
			value:     strconv.FormatInt(value, 10),
			expiresAt: expiryFor(now, ttl),
		}
		return value, nil
	}

	current, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, ErrNotInteger)
	}
	current += value
	entry.value = strconv.FormatInt(current, 10)
	m.values[key] = entry
	return current, nil
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.values[key]
	if !ok {
		return "", false, nil
	}
	if expired(entry.expiresAt, m.now()) {
		delete(m.values, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = memoryValue{value: value, expiresAt: expiryFor(m.now(), ttl)}
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	delete(m.lists, key)
	delete(m.buckets, key)
	return nil
}

func (m *MemoryStorage) AddToList(ctx context.Context, key string, value int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	list, ok := m.lists[key]
	if !ok || expired(list.expiresAt, now) {
		list = &memoryList{}
		m.lists[key] = list
	}

	i := sort.Search(len(list.values), func(i int) bool { return list.values[i] > value })
	list.values = append(list.values, 0)
	copy(list.values[i+1:], list.values[i:])
	list.values[i] = value
	list.expiresAt = expiryFor(now, ttl)
	return nil
}

func (m *MemoryStorage) RemoveOldFromList(ctx context.Context, key string, cutoff int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.lists[key]
	if !ok {
		return nil
	}
	i := sort.Search(len(list.values), func(i int) bool { return list.values[i] >= cutoff })
	list.values = append(list.values[:0], list.values[i:]...)
	return nil
}

func (m *MemoryStorage) GetListLength(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.lists[key]
	if !ok {
		return 0, nil
	}
	if expired(list.expiresAt, m.now()) {
		delete(m.lists, key)
		return 0, nil
	}
	return int64(len(list.values)), nil
}

func (m *MemoryStorage) GetBucket(ctx context.Context, key string) (BucketState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if !ok {
		return BucketState{}, nil
	}
	if expired(bucket.expiresAt, m.now()) {
		delete(m.buckets, key)
		return BucketState{}, nil
	}
	return bucket.state, nil
}

func (m *MemoryStorage) SetBucket(ctx context.Context, key string, state BucketState, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buckets[key] = memoryBucket{state: state, expiresAt: expiryFor(m.now(), ttl)}
	return nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	return nil
}

// Len reports the number of live keys across values, lists and buckets.
func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values) + len(m.lists) + len(m.buckets)
}

// Sweep evicts every expired entry.
func (m *MemoryStorage) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, v := range m.values {
		if expired(v.expiresAt, now) {
			delete(m.values, k)
		}
	}
	for k, l := range m.lists {
		if expired(l.expiresAt, now) || len(l.values) == 0 {
			delete(m.lists, k)
		}
	}
	for k, b := range m.buckets {
		if expired(b.expiresAt, now) {
			delete(m.buckets, k)
		}
	}
}

func (m *MemoryStorage) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.done:
			return
		}
	}
}
