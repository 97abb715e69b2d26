package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aesthetiq/ratelimiter/internal/logging"
	"github.com/aesthetiq/ratelimiter/internal/storage"
)

type AdaptiveSettings struct {
	LoadProvider  LoadProvider
	LoadThreshold float64
	ScaleFactor   float64
	Logger        *slog.Logger
}

func (s AdaptiveSettings) withDefaults() AdaptiveSettings {
	if s.LoadProvider == nil {
		s.LoadProvider = StaticLoad(0)
	}
	if s.LoadThreshold <= 0 {
		s.LoadThreshold = DefaultLoadThreshold
	}
	if s.ScaleFactor <= 0 || s.ScaleFactor > 1 {
		s.ScaleFactor = DefaultScaleFactor
	}
	if s.Logger == nil {
		s.Logger = logging.Discard()
	}
	return s
}

// AdaptiveRateLimiter is a sliding window whose max shrinks while the
// system is under load.
type AdaptiveRateLimiter struct {
	window   time.Duration
	max      int64
	storage  storage.Storage
	settings AdaptiveSettings
}

func NewAdaptiveRateLimiter(config Config, store storage.Storage, settings AdaptiveSettings) (*AdaptiveRateLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: storage is required", ErrInvalidConfig)
	}

	return &AdaptiveRateLimiter{
		window:   config.Window,
		max:      config.Max,
		storage:  store,
		settings: settings.withDefaults(),
	}, nil
}

// EffectiveMax returns the limit for the given load.
func (a *AdaptiveRateLimiter) EffectiveMax(load float64) int64 {
	if load <= a.settings.LoadThreshold {
		return a.max
	}
	return maxInt64(1, int64(math.Floor(float64(a.max)*a.settings.ScaleFactor)))
}

func (a *AdaptiveRateLimiter) IsAllowed(ctx context.Context, key string, timestamp time.Time) (RateLimitResult, error) {
	load, err := a.settings.LoadProvider.SystemLoad(ctx)
	if err != nil {
		a.settings.Logger.Warn("system load unavailable, assuming idle", "error", err)
		load = 0
	}

	max := a.EffectiveMax(load)
	result, err := slidingWindowCheck(ctx, a.storage, key, timestamp, a.window, max)
	if err != nil {
		return result, fmt.Errorf("adaptive: %w", err)
	}

	result.Metadata["system_load"] = load
	result.Metadata["base_limit"] = a.max
	return result, nil
}

func (a *AdaptiveRateLimiter) Reset(ctx context.Context, key string) error {
	return a.storage.Delete(ctx, key+slidingKeySuffix)
}

type AdaptiveConstructor struct {
	settings AdaptiveSettings
}

func (c *AdaptiveConstructor) Name() string {
	return string(AdaptiveStrategy)
}

func (c *AdaptiveConstructor) NewFromConfig(config Config, store storage.Storage) (RateLimiter, error) {
	limiter, err := NewAdaptiveRateLimiter(config, store, c.settings)
	if err != nil {
		return nil, fmt.Errorf("adaptive strategy: %w", err)
	}
	return limiter, nil
}
