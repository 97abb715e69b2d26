package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aesthetiq/ratelimiter/internal/config"
	"github.com/aesthetiq/ratelimiter/internal/eventlog"
	"github.com/aesthetiq/ratelimiter/internal/logging"
	"github.com/aesthetiq/ratelimiter/internal/metrics"
	"github.com/aesthetiq/ratelimiter/internal/ratelimit"
	"github.com/aesthetiq/ratelimiter/internal/storage"
)

const (
	defaultCheckTimeout = 5 * time.Second
	defaultMessage      = "Rate limit exceeded"
	statusKeyPrefix     = "rate_limit_status:"
)

var ErrUnknownCategory = errors.New("unknown rate limit category")

type RateLimitConfig struct {
	KeyExtractor   func(c *gin.Context) string
	Skip           func(c *gin.Context) bool
	OnLimitReached func(c *gin.Context, result ratelimit.RateLimitResult)
}

// Limiter enforces the per-category limits of a route table. Categories
// can be replaced while requests are in flight.
type Limiter struct {
	factory  *ratelimit.Factory
	manager  *ratelimit.ConfigBasedStrategyManager
	store    storage.Storage
	recorder *eventlog.Recorder
	metrics  metrics.Collector
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	routes map[string]config.RouteConfig
	hooks  map[string]RateLimitConfig

	dynamicMu sync.Mutex
	dynamic   map[ratelimit.Config]ratelimit.RateLimiter
}

type Option func(*Limiter)

func WithRecorder(recorder *eventlog.Recorder) Option {
	return func(l *Limiter) { l.recorder = recorder }
}

func WithMetrics(collector metrics.Collector) Option {
	return func(l *Limiter) { l.metrics = collector }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logging.Component(logger, "middleware.ratelimit") }
}

func WithCheckTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithRateLimitConfig sets the hooks for one category.
func WithRateLimitConfig(category string, rc RateLimitConfig) Option {
	return func(l *Limiter) { l.hooks[category] = rc }
}

func NewLimiter(factory *ratelimit.Factory, routes map[string]config.RouteConfig, opts ...Option) (*Limiter, error) {
	manager, err := ratelimit.NewConfigBasedStrategyManager(factory, ratelimit.ConfigsFromRoutes(routes))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiters: %w", err)
	}

	l := &Limiter{
		factory: factory,
		manager: manager,
		store:   factory.Storage(),
		metrics: metrics.NewNoopCollector(),
		logger:  logging.Discard(),
		timeout: defaultCheckTimeout,
		now:     time.Now,
		routes:  copyRoutes(routes),
		hooks:   make(map[string]RateLimitConfig),
		dynamic: make(map[ratelimit.Config]ratelimit.RateLimiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func copyRoutes(routes map[string]config.RouteConfig) map[string]config.RouteConfig {
	out := make(map[string]config.RouteConfig, len(routes))
	for k, v := range routes {
		out[k] = v
	}
	return out
}

// Register installs a prebuilt limiter for category.
func (l *Limiter) Register(category string, route config.RouteConfig, limiter ratelimit.RateLimiter) {
	l.manager.Register(category, ratelimit.ConfigFromRoute(route), limiter)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes[category] = route
}

func (l *Limiter) UpdateCategory(category string, route config.RouteConfig) error {
	if err := l.manager.UpdateStrategy(category, ratelimit.ConfigFromRoute(route)); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes[category] = route
	return nil
}

// UpdateCategories replaces the whole table. Nothing changes unless every
// category is valid.
func (l *Limiter) UpdateCategories(routes map[string]config.RouteConfig) error {
	if err := config.ValidateRateLimits(routes); err != nil {
		return err
	}
	if err := l.manager.ReplaceAll(ratelimit.ConfigsFromRoutes(routes)); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes = copyRoutes(routes)
	return nil
}

func (l *Limiter) Routes() map[string]config.RouteConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyRoutes(l.routes)
}

func (l *Limiter) Route(category string) (config.RouteConfig, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	route, ok := l.routes[category]
	return route, ok
}

func (l *Limiter) RateLimiter(category string) (ratelimit.RateLimiter, bool) {
	limiter, _, ok := l.manager.Limiter(category)
	return limiter, ok
}

func (l *Limiter) Categories() []string {
	return l.manager.Categories()
}

func (l *Limiter) Strategies() []string {
	return l.manager.GetAvailableStrategies()
}

func (l *Limiter) hooksFor(category string) RateLimitConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hooks[category]
}

// Handler enforces category. Unknown categories pass through.
func (l *Limiter) Handler(category string) gin.HandlerFunc {
	return func(c *gin.Context) {
		l.serve(c, category)
	}
}

func (l *Limiter) serve(c *gin.Context, category string) {
	limiter, cfg, ok := l.manager.Limiter(category)
	if !ok {
		c.Next()
		return
	}

	hooks := l.hooksFor(category)
	if hooks.Skip != nil && hooks.Skip(c) {
		c.Next()
		return
	}

	key := DefaultKey(c)
	if hooks.KeyExtractor != nil {
		key = hooks.KeyExtractor(c)
	}

	route, _ := l.Route(category)
	l.enforce(c, check{
		category:         category,
		key:              key,
		limiter:          limiter,
		config:           cfg,
		hooks:            hooks,
		releaseOnSuccess: route.ReleaseOnSuccess,
	})
}

type check struct {
	category         string
	key              string
	limiter          ratelimit.RateLimiter
	config           ratelimit.Config
	hooks            RateLimitConfig
	releaseOnSuccess bool
}

func (l *Limiter) enforce(c *gin.Context, chk check) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), l.timeout)
	defer cancel()

	now := l.now()
	ip := ClientIP(c)

	result, err := chk.limiter.IsAllowed(ctx, chk.key, now)
	if err != nil {
		l.logger.Error("rate limit check failed, allowing request",
			"category", chk.category,
			"key", chk.key,
			"ip", ip,
			"path", c.Request.URL.Path,
			"error", err,
		)
		l.metrics.RecordFailOpen(chk.category)
		l.record(ctx, c, eventlog.Entry{
			Level:    eventlog.LevelError,
			Message:  err.Error(),
			Category: chk.category,
			Allowed:  true,
			Context:  map[string]interface{}{"key": chk.key},
		})
		c.Next()
		return
	}

	SetRateLimitHeaders(c, result)
	l.storeStatus(ctx, Identity(c), chk.category, result)

	if !result.Allowed {
		l.record(ctx, c, eventlog.Entry{
			Level:    eventlog.LevelWarn,
			Message:  "Rate limit exceeded",
			Category: chk.category,
			Context: map[string]interface{}{
				"key":       chk.key,
				"limit":     result.Limit,
				"remaining": result.Remaining,
			},
		})

		message := chk.config.Message
		if message == "" {
			message = defaultMessage
		}
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error": gin.H{
				"type":       "RATE_LIMIT",
				"message":    message,
				"retryAfter": retryAfterSeconds(result, now),
				"limit":      result.Limit,
				"remaining":  result.Remaining,
				"resetTime":  result.ResetTime.UnixMilli(),
			},
		})
		if chk.hooks.OnLimitReached != nil {
			chk.hooks.OnLimitReached(c, result)
		}
		c.Abort()
		return
	}

	l.record(ctx, c, eventlog.Entry{
		Level:    eventlog.LevelInfo,
		Message:  "Request allowed",
		Category: chk.category,
		Allowed:  true,
		Context: map[string]interface{}{
			"key":       chk.key,
			"remaining": result.Remaining,
		},
	})

	c.Next()

	if chk.releaseOnSuccess && c.Writer.Status() < http.StatusBadRequest {
		l.release(c, chk)
	}
}

func (l *Limiter) release(c *gin.Context, chk check) {
	releaser, ok := ratelimit.AsReleaser(chk.limiter)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), l.timeout)
	defer cancel()

	if err := releaser.Release(ctx, chk.key, l.now()); err != nil {
		l.logger.Warn("release failed", "category", chk.category, "key", chk.key, "error", err)
	}
}

func (l *Limiter) record(ctx context.Context, c *gin.Context, e eventlog.Entry) {
	if l.recorder == nil {
		return
	}
	e.IP = ClientIP(c)
	e.UserAgent = c.Request.UserAgent()
	e.Path = c.Request.URL.Path
	l.recorder.Record(ctx, e)
}

// Status is the last decision stored for a caller and category.
type Status struct {
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	ResetTime int64 `json:"resetTime"`
	WindowMs  int64 `json:"windowMs"`
}

func StatusKey(identity, category string) string {
	return statusKeyPrefix + identity + ":" + category
}

func (l *Limiter) storeStatus(ctx context.Context, identity, category string, result ratelimit.RateLimitResult) {
	if l.store == nil {
		return
	}

	data, err := json.Marshal(Status{
		Limit:     result.Limit,
		Remaining: result.Remaining,
		ResetTime: result.ResetTime.UnixMilli(),
		WindowMs:  result.Window.Milliseconds(),
	})
	if err != nil {
		return
	}

	if err := l.store.Set(ctx, StatusKey(identity, category), string(data), result.Window); err != nil {
		l.logger.Debug("failed to store rate limit status", "category", category, "error", err)
	}
}

// LoadStatus returns the stored status for identity, or one built from the
// category config when nothing is stored.
func (l *Limiter) LoadStatus(ctx context.Context, identity, category string) (Status, error) {
	if l.store != nil {
		raw, ok, err := l.store.Get(ctx, StatusKey(identity, category))
		if err != nil {
			return Status{}, fmt.Errorf("load status: %w", err)
		}
		if ok {
			var s Status
			if err := json.Unmarshal([]byte(raw), &s); err == nil {
				return s, nil
			}
		}
	}

	route, ok := l.Route(category)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	return Status{
		Limit:     route.Max,
		Remaining: route.Max,
		ResetTime: l.now().Add(route.Window).UnixMilli(),
		WindowMs:  route.Window.Milliseconds(),
	}, nil
}

// SetRateLimitHeaders writes the X-RateLimit-* headers, plus Retry-After
// when the request was denied.
func SetRateLimitHeaders(c *gin.Context, result ratelimit.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

	if !result.Allowed && result.RetryAfter != nil {
		c.Header("Retry-After", strconv.FormatInt(ceilSeconds(*result.RetryAfter), 10))
	}
}

func retryAfterSeconds(result ratelimit.RateLimitResult, now time.Time) int64 {
	if result.RetryAfter != nil {
		return ceilSeconds(*result.RetryAfter)
	}
	return ceilSeconds(result.ResetTime.Sub(now))
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
