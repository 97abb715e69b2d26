package eventlog

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryRetention = 10000

// MemorySink keeps the most recent entries in process.
type MemorySink struct {
	mu        sync.RWMutex
	entries   []Entry
	retention int
}

var _ Sink = (*MemorySink)(nil)

func NewMemorySink(retention int) *MemorySink {
	if retention <= 0 {
		retention = defaultMemoryRetention
	}
	return &MemorySink{retention: retention}
}

func (s *MemorySink) Write(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entries...)
	if over := len(s.entries) - s.retention; over > 0 {
		s.entries = append([]Entry(nil), s.entries[over:]...)
	}
	return nil
}

func (s *MemorySink) Analytics(_ context.Context, since time.Time) (Analytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarize(s.entries, since), nil
}

func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemorySink) Close() error {
	return nil
}
