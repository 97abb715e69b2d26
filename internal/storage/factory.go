package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/aesthetiq/ratelimiter/internal/config"
	"github.com/aesthetiq/ratelimiter/internal/database"
	"github.com/aesthetiq/ratelimiter/internal/logging"
	"github.com/aesthetiq/ratelimiter/internal/metrics"
)

// Status describes how the configured backend was resolved at startup.
type Status struct {
	Requested string `json:"requested"`
	Active    string `json:"active"`
	Degraded  bool   `json:"degraded"`
	Reason    string `json:"reason,omitempty"`
}

type Deps struct {
	Logger  *slog.Logger
	Metrics metrics.Collector
	// DB is required for the database backend.
	DB *database.DB
	// RedisClient replaces the client built from configuration.
	RedisClient redis.UniversalClient
}

// New resolves the configured backend once. A redis backend that is not
// configured or not reachable falls back to memory when the configuration
// allows it.
func New(ctx context.Context, cfg *config.Config, deps Deps) (Storage, Status, error) {
	logger := logging.Component(deps.Logger, "storage")
	status := Status{Requested: cfg.Storage.Backend, Active: cfg.Storage.Backend}

	var (
		backend Storage
		err     error
	)

	switch cfg.Storage.Backend {
	case BackendRedis:
		backend, err = newRedis(ctx, cfg.Redis, deps.RedisClient)
		if err != nil {
			if !cfg.Storage.FallbackToMemory {
				return nil, status, fmt.Errorf("redis storage unavailable: %w", err)
			}
			// Each instance would count against its own process-local store.
			if cfg.Deployment.Instances > 1 {
				return nil, status, fmt.Errorf("redis storage unavailable and memory fallback is not allowed with %d instances: %w", cfg.Deployment.Instances, err)
			}
			logger.Warn("redis storage unavailable, falling back to memory", "error", err)
			backend = NewMemoryStorage(WithSweepInterval(cfg.Storage.SweepInterval))
			status.Active = BackendMemory
			status.Degraded = true
			status.Reason = err.Error()
		}

	case BackendMemory:
		backend = NewMemoryStorage(WithSweepInterval(cfg.Storage.SweepInterval))

	case BackendDatabase:
		dbStorage, err := NewDatabaseStorage(ctx, deps.DB, WithDatabaseLogger(deps.Logger))
		if err != nil {
			return nil, status, err
		}
		if cfg.Storage.CleanupSchedule != "" {
			if err := dbStorage.StartCleanup(cfg.Storage.CleanupSchedule); err != nil {
				return nil, status, err
			}
		}
		backend = dbStorage

	default:
		return nil, status, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}

	logger.Info("storage backend ready", "requested", status.Requested, "active", status.Active, "degraded", status.Degraded)

	if deps.Metrics != nil {
		deps.Metrics.SetStorageFallback(status.Requested, status.Active, status.Degraded)
		backend = NewInstrumented(backend, status.Active, deps.Metrics)
	}

	return backend, status, nil
}

var errRedisNotConfigured = errors.New("redis url or host not configured")

func newRedis(ctx context.Context, cfg config.RedisConfig, client redis.UniversalClient) (*RedisStorage, error) {
	if client == nil {
		if !cfg.Configured() {
			return nil, errRedisNotConfigured
		}
		c, err := NewRedisClient(RedisOptions{
			URL:         cfg.URL,
			Host:        cfg.Host,
			Port:        cfg.Port,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.DialTimeout,
		})
		if err != nil {
			return nil, err
		}
		client = c
	}

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStorage(client), nil
}
