package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/aesthetiq/ratelimiter/internal/logging"
)

const (
	DefaultMaxEntries    = 1000
	DefaultFlushSchedule = "@every 30s"

	flushTimeout = 10 * time.Second
)

type Options struct {
	// MaxEntries bounds both the recent buffer and the unflushed queue.
	MaxEntries    int
	FlushSchedule string
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Recorder buffers rate limiting events, mirrors them to the structured
// log and writes them to a Sink. WARN and ERROR entries are written
// immediately; everything else waits for the flush schedule.
type Recorder struct {
	sink       Sink
	logger     *slog.Logger
	maxEntries int
	now        func() time.Time
	cron       *cron.Cron

	mu      sync.Mutex
	recent  []Entry
	pending []Entry

	flushMu   sync.Mutex
	closeOnce sync.Once
}

func NewRecorder(sink Sink, opts Options) (*Recorder, error) {
	if sink == nil {
		sink = NewMemorySink(0)
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.FlushSchedule == "" {
		opts.FlushSchedule = DefaultFlushSchedule
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	r := &Recorder{
		sink:       sink,
		logger:     logging.Component(opts.Logger, "eventlog"),
		maxEntries: opts.MaxEntries,
		now:        opts.Clock,
		cron:       cron.New(),
	}

	if _, err := r.cron.AddFunc(opts.FlushSchedule, r.scheduledFlush); err != nil {
		return nil, fmt.Errorf("invalid flush schedule %q: %w", opts.FlushSchedule, err)
	}
	r.cron.Start()
	return r, nil
}

func (r *Recorder) scheduledFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := r.Flush(ctx); err != nil {
		r.logger.Error("scheduled event flush failed", "error", err)
	}
}

// Record stores e, filling in its id and timestamp when missing.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}

	r.logger.Log(ctx, e.Level.slogLevel(), e.Message,
		"event_id", e.ID.String(),
		"category", e.Category,
		"ip", e.IP,
		"path", e.Path,
		"allowed", e.Allowed,
	)

	r.mu.Lock()
	r.recent = r.bounded(append(r.recent, e))
	r.pending = r.bounded(append(r.pending, e))
	r.mu.Unlock()

	if e.Level.urgent() {
		if err := r.Flush(ctx); err != nil {
			r.logger.Error("event flush failed", "error", err)
		}
	}
}

// Info, Warn and Error record a message with optional context.
func (r *Recorder) Info(ctx context.Context, message string, fields map[string]interface{}) {
	r.Record(ctx, Entry{Level: LevelInfo, Message: message, Context: fields})
}

func (r *Recorder) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	r.Record(ctx, Entry{Level: LevelWarn, Message: message, Context: fields})
}

func (r *Recorder) Error(ctx context.Context, err error, fields map[string]interface{}) {
	r.Record(ctx, Entry{Level: LevelError, Message: err.Error(), Context: fields})
}

// bounded drops the oldest entries beyond maxEntries.
func (r *Recorder) bounded(entries []Entry) []Entry {
	if over := len(entries) - r.maxEntries; over > 0 {
		return append(entries[:0:0], entries[over:]...)
	}
	return entries
}

// Flush writes every pending entry. On failure the batch goes back to the
// front of the queue, still bounded by MaxEntries.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := r.sink.Write(ctx, batch); err != nil {
		r.mu.Lock()
		r.pending = r.bounded(append(batch, r.pending...))
		r.mu.Unlock()
		return fmt.Errorf("write %d events: %w", len(batch), err)
	}
	return nil
}

// Pending reports how many entries are waiting to be written.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Recent returns up to limit of the newest entries, oldest first.
func (r *Recorder) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > len(r.recent) {
		limit = len(r.recent)
	}
	out := make([]Entry, limit)
	copy(out, r.recent[len(r.recent)-limit:])
	return out
}

// Clear drops the recent buffer. Pending entries are still written.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent = nil
}

// Analytics flushes pending entries and summarises the named time range.
func (r *Recorder) Analytics(ctx context.Context, timeRange string) (Analytics, error) {
	if err := r.Flush(ctx); err != nil {
		r.logger.Warn("analytics computed without pending events", "error", err)
	}

	now := r.now()
	a, err := r.sink.Analytics(ctx, TimeRangeCutoff(now, timeRange))
	if err != nil {
		return Analytics{}, fmt.Errorf("analytics: %w", err)
	}
	if a.TopViolators == nil {
		a.TopViolators = []Violator{}
	}
	if a.Endpoints == nil {
		a.Endpoints = []EndpointViolations{}
	}
	a.TimeRange = timeRange
	a.GeneratedAt = now
	return a, nil
}

// Close stops the schedule and writes whatever is still pending.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		<-r.cron.Stop().Done()

		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		err = r.Flush(ctx)
	})
	return err
}
