package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/aesthetiq/ratelimiter/internal/config"
	"github.com/aesthetiq/ratelimiter/internal/database"
	"github.com/aesthetiq/ratelimiter/internal/ddos"
	"github.com/aesthetiq/ratelimiter/internal/eventlog"
	"github.com/aesthetiq/ratelimiter/internal/logging"
	"github.com/aesthetiq/ratelimiter/internal/metrics"
	"github.com/aesthetiq/ratelimiter/internal/middleware"
	"github.com/aesthetiq/ratelimiter/internal/ratelimit"
	"github.com/aesthetiq/ratelimiter/internal/storage"
)

// Server owns every long lived component of the service and the HTTP
// listener in front of them.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	registry    *prometheus.Registry
	collector   metrics.Collector
	db          *database.DB
	store       storage.Storage
	storeStatus storage.Status
	load        *ratelimit.InFlightLoad
	limiter     *middleware.Limiter
	recorder    *eventlog.Recorder
	protection  *ddos.Protection
	selector    *ratelimit.Selector

	router     *gin.Engine
	httpServer *http.Server

	closeOnce sync.Once
}

type Option func(*options)

type options struct {
	redisClient redis.UniversalClient
}

// WithRedisClient replaces the Redis client built from configuration.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) { o.redisClient = client }
}

// New builds the storage backend, limiters, event log and router described
// by cfg. Components created before a failure are closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (srv *Server, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewNoopCollector(),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.collector = metrics.NewPrometheusCollector(s.registry)
	}

	if cfg.Storage.Backend == storage.BackendDatabase || (cfg.EventLog.Enabled && cfg.EventLog.Sink == "database") {
		s.db, err = database.Open(ctx, database.Config{
			Driver:       cfg.Database.Driver,
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
		})
		if err != nil {
			return nil, err
		}
	}

	s.store, s.storeStatus, err = storage.New(ctx, cfg, storage.Deps{
		Logger:      logger,
		Metrics:     s.collector,
		DB:          s.db,
		RedisClient: o.redisClient,
	})
	if err != nil {
		return nil, err
	}

	s.load = ratelimit.NewInFlightLoad(cfg.Adaptive.Capacity)
	factory := ratelimit.NewFactory(s.store).
		WithMetrics(s.collector).
		WithAdaptive(ratelimit.AdaptiveSettings{
			LoadProvider:  s.load,
			LoadThreshold: cfg.Adaptive.LoadThreshold,
			ScaleFactor:   cfg.Adaptive.ScaleFactor,
			Logger:        logger,
		})

	if cfg.EventLog.Enabled {
		if s.recorder, err = newRecorder(ctx, cfg.EventLog, s.db, logger); err != nil {
			return nil, err
		}
	}

	limiterOpts := []middleware.Option{
		middleware.WithMetrics(s.collector),
		middleware.WithLogger(logger),
		middleware.WithCheckTimeout(cfg.Server.CheckTimeout),
	}
	if s.recorder != nil {
		limiterOpts = append(limiterOpts, middleware.WithRecorder(s.recorder))
	}
	if s.limiter, err = middleware.NewLimiter(factory, cfg.RateLimits, limiterOpts...); err != nil {
		return nil, err
	}

	if cfg.DDoS.Enabled {
		s.protection, err = ddos.New(ddos.Config{
			UserAgentPatterns: cfg.DDoS.UserAgentPatterns,
			BlockDuration:     cfg.DDoS.BlockDuration,
			RequestsPerSecond: cfg.DDoS.RequestsPerSecond,
			Burst:             cfg.DDoS.Burst,
			Logger:            logger,
			Metrics:           s.collector,
		})
		if err != nil {
			return nil, err
		}
	}

	location, err := cfg.Dynamic.Location()
	if err != nil {
		return nil, err
	}
	s.selector = ratelimit.NewSelector(
		ratelimit.WithSelectorLoad(s.load),
		ratelimit.WithBusinessHours(ratelimit.BusinessHours{
			Location:  location,
			StartHour: cfg.Dynamic.BusinessHoursStart,
			EndHour:   cfg.Dynamic.BusinessHoursEnd,
		}),
	)

	if s.router, err = s.setupRoutes(); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func newRecorder(ctx context.Context, cfg config.EventLogConfig, db *database.DB, logger *slog.Logger) (*eventlog.Recorder, error) {
	var sink eventlog.Sink
	if cfg.Sink == "database" {
		sqlSink, err := eventlog.NewSQLSink(ctx, db)
		if err != nil {
			return nil, err
		}
		sink = sqlSink
	} else {
		sink = eventlog.NewMemorySink(0)
	}

	return eventlog.NewRecorder(sink, eventlog.Options{
		MaxEntries:    cfg.MaxEntries,
		FlushSchedule: cfg.FlushSchedule,
		Logger:        logger,
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Limiter() *middleware.Limiter {
	return s.limiter
}

func (s *Server) StorageStatus() storage.Status {
	return s.storeStatus
}

// Reload applies the rate limit table of a changed configuration. Other
// sections need a restart.
func (s *Server) Reload(cfg *config.Config, err error) {
	if err != nil {
		s.logger.Error("config reload rejected, keeping previous rate limits", "error", err)
		return
	}
	if err := s.limiter.UpdateCategories(cfg.RateLimits); err != nil {
		s.logger.Error("config reload rejected, keeping previous rate limits", "error", err)
		return
	}
	s.logger.Info("rate limits reloaded", "categories", s.limiter.Categories())
}

// Run serves until ctx is cancelled or the listener fails, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr, "storage", s.storeStatus.Active, "degraded", s.storeStatus.Degraded)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.Close()
			return err
		}
	}
	return s.Shutdown(context.Background())
}

// Shutdown stops accepting requests, waits for in-flight ones up to the
// configured timeout and then releases every component.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			err = fmt.Errorf("http shutdown: %w", shutdownErr)
		}
	}
	return errors.Join(err, s.Close())
}

// Close releases the components without touching the listener.
func (s *Server) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.protection != nil {
			s.protection.Close()
		}
		if s.recorder != nil {
			if err := s.recorder.Close(); err != nil {
				errs = append(errs, fmt.Errorf("event log: %w", err))
			}
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
		}
		if s.db != nil {
			if err := s.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("database: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
