package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		query  string
		want   string
	}{
		{
			name:   "sqlite untouched",
			driver: DriverSQLite,
			query:  "SELECT * FROM t WHERE a = ? AND b = ?",
			want:   "SELECT * FROM t WHERE a = ? AND b = ?",
		},
		{
			name:   "postgres numbered",
			driver: DriverPostgres,
			query:  "SELECT * FROM t WHERE a = ? AND b = ?",
			want:   "SELECT * FROM t WHERE a = $1 AND b = $2",
		},
		{
			name:   "quoted question mark kept",
			driver: DriverPostgres,
			query:  "SELECT '?' FROM t WHERE a = ?",
			want:   "SELECT '?' FROM t WHERE a = $1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &DB{driver: tt.driver}
			assert.Equal(t, tt.want, db.Rebind(tt.query))
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{
		Driver: DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DriverSQLite, db.Driver())
	require.NoError(t, db.Migrate(ctx,
		`CREATE TABLE IF NOT EXISTS things (id TEXT PRIMARY KEY, n BIGINT NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_things_n ON things(n)`,
	))

	_, err = db.ExecContext(ctx, db.Rebind(`INSERT INTO things (id, n) VALUES (?, ?)`), "a", 1)
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.QueryRowContext(ctx, db.Rebind(`SELECT n FROM things WHERE id = ?`), "a").Scan(&n))
	assert.Equal(t, int64(1), n)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: DriverSQLite})
	assert.Error(t, err)
}
