package eventlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// urgent levels are written to the sink without waiting for the schedule.
func (l Level) urgent() bool {
	return l == LevelWarn || l == LevelError
}

// Entry is one rate limiting event. Denied checks are recorded at WARN,
// which is what analytics counts as a blocked request.
type Entry struct {
	ID        uuid.UUID              `json:"id"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Category  string                 `json:"category,omitempty"`
	IP        string                 `json:"ip,omitempty"`
	UserAgent string                 `json:"userAgent,omitempty"`
	Path      string                 `json:"path,omitempty"`
	Allowed   bool                   `json:"allowed"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sink stores entries durably and answers analytics queries over them.
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
	Analytics(ctx context.Context, since time.Time) (Analytics, error)
	Close() error
}
