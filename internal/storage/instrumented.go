package storage

import (
	"context"
	"time"

	"github.com/aesthetiq/ratelimiter/internal/metrics"
)

// Instrumented records the duration and outcome of every call on the
// wrapped backend.
type Instrumented struct {
	next      Storage
	backend   string
	collector metrics.Collector
}

var _ Storage = (*Instrumented)(nil)

func NewInstrumented(next Storage, backend string, collector metrics.Collector) *Instrumented {
	return &Instrumented{next: next, backend: backend, collector: collector}
}

// Unwrap returns the decorated backend.
func (s *Instrumented) Unwrap() Storage {
	return s.next
}

func (s *Instrumented) observe(operation string, start time.Time, err error) {
	s.collector.RecordStorageOperation(s.backend, operation, time.Since(start), err)
}

func (s *Instrumented) Increment(ctx context.Context, key string, value int64, ttl time.Duration) (int64, error) {
	start := time.Now()
	n, err := s.next.Increment(ctx, key, value, ttl)
	s.observe("increment", start, err)
	return n, err
}

func (s *Instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return v, ok, err
}

func (s *Instrumented) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	start := time.Now()
	err := s.next.Set(ctx, key, value, ttl)
	s.observe("set", start, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *Instrumented) AddToList(ctx context.Context, key string, value int64, ttl time.Duration) error {
	start := time.Now()
	err := s.next.AddToList(ctx, key, value, ttl)
	s.observe("add_to_list", start, err)
	return err
}

func (s *Instrumented) RemoveOldFromList(ctx context.Context, key string, cutoff int64) error {
	start := time.Now()
	err := s.next.RemoveOldFromList(ctx, key, cutoff)
	s.observe("remove_old_from_list", start, err)
	return err
}

func (s *Instrumented) GetListLength(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := s.next.GetListLength(ctx, key)
	s.observe("get_list_length", start, err)
	return n, err
}

func (s *Instrumented) GetBucket(ctx context.Context, key string) (BucketState, error) {
	start := time.Now()
	state, err := s.next.GetBucket(ctx, key)
	s.observe("get_bucket", start, err)
	return state, err
}

func (s *Instrumented) SetBucket(ctx context.Context, key string, state BucketState, ttl time.Duration) error {
	start := time.Now()
	err := s.next.SetBucket(ctx, key, state, ttl)
	s.observe("set_bucket", start, err)
	return err
}

func (s *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}
