package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aesthetiq/ratelimiter/internal/database"
)

var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS rate_limit_logs (
		id TEXT PRIMARY KEY,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		allowed INTEGER NOT NULL,
		context TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_logs_created ON rate_limit_logs(created_at, level)`,
}

// SQLSink writes entries to the rate_limit_logs table. created_at holds
// unix milliseconds.
type SQLSink struct {
	db *database.DB
}

var _ Sink = (*SQLSink)(nil)

// NewSQLSink creates the table if needed. The caller keeps ownership of db.
func NewSQLSink(ctx context.Context, db *database.DB) (*SQLSink, error) {
	if db == nil {
		return nil, errors.New("sql sink requires a database handle")
	}
	if err := db.Migrate(ctx, sqlSchema...); err != nil {
		return nil, fmt.Errorf("failed to initialize event log schema: %w", err)
	}
	return &SQLSink{db: db}, nil
}

func (s *SQLSink) Write(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event log write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.db.Rebind(`
		INSERT INTO rate_limit_logs (id, level, message, category, ip, user_agent, path, allowed, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare event log write: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var contextJSON *string
		if len(e.Context) > 0 {
			data, err := json.Marshal(e.Context)
			if err != nil {
				return fmt.Errorf("encode context of event %s: %w", e.ID, err)
			}
			encoded := string(data)
			contextJSON = &encoded
		}

		allowed := 0
		if e.Allowed {
			allowed = 1
		}

		if _, err := stmt.ExecContext(ctx,
			e.ID.String(), string(e.Level), e.Message, e.Category, e.IP, e.UserAgent, e.Path,
			allowed, contextJSON, e.Timestamp.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event log write: %w", err)
	}
	return nil
}

func (s *SQLSink) Analytics(ctx context.Context, since time.Time) (Analytics, error) {
	var a Analytics
	cutoff := since.UnixMilli()

	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT COUNT(*) FROM rate_limit_logs WHERE created_at >= ?`),
		cutoff).Scan(&a.TotalRequests)
	if err != nil {
		return a, fmt.Errorf("count events: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT COUNT(*) FROM rate_limit_logs WHERE created_at >= ? AND level = ?`),
		cutoff, string(LevelWarn)).Scan(&a.BlockedRequests)
	if err != nil {
		return a, fmt.Errorf("count blocked events: %w", err)
	}

	ips, err := s.groupWarnings(ctx, "ip", cutoff)
	if err != nil {
		return a, err
	}
	a.TopViolators = make([]Violator, 0, len(ips))
	for _, g := range ips {
		a.TopViolators = append(a.TopViolators, Violator{IP: g.value, Count: g.count})
	}

	paths, err := s.groupWarnings(ctx, "path", cutoff)
	if err != nil {
		return a, err
	}
	a.Endpoints = make([]EndpointViolations, 0, len(paths))
	for _, g := range paths {
		a.Endpoints = append(a.Endpoints, EndpointViolations{Endpoint: g.value, Violations: g.count})
	}

	return a, nil
}

type group struct {
	value string
	count int64
}

// groupWarnings counts WARN entries by column. column is never user input.
func (s *SQLSink) groupWarnings(ctx context.Context, column string, cutoff int64) ([]group, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) AS n FROM rate_limit_logs
		WHERE created_at >= ? AND level = ? AND %[1]s <> ''
		GROUP BY %[1]s
		ORDER BY n DESC, %[1]s
		LIMIT %[2]d`, column, topN)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), cutoff, string(LevelWarn))
	if err != nil {
		return nil, fmt.Errorf("group events by %s: %w", column, err)
	}
	defer rows.Close()

	var out []group
	for rows.Next() {
		var g group
		if err := rows.Scan(&g.value, &g.count); err != nil {
			return nil, fmt.Errorf("scan events by %s: %w", column, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Close leaves the shared database handle open.
func (s *SQLSink) Close() error {
	return nil
}
