package ratelimit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aesthetiq/ratelimiter/internal/config"
	"github.com/aesthetiq/ratelimiter/internal/metrics"
	"github.com/aesthetiq/ratelimiter/internal/storage"
)

type StrategyConstructor interface {
	Name() string
	NewFromConfig(config Config, store storage.Storage) (RateLimiter, error)
}

// Factory builds limiters for a shared storage backend from a registry of
// strategy constructors.
type Factory struct {
	storage          storage.Storage
	metricsCollector metrics.Collector

	mu         sync.RWMutex
	strategies map[string]StrategyConstructor
}

func NewFactory(store storage.Storage) *Factory {
	f := &Factory{
		storage:          store,
		metricsCollector: metrics.NewNoopCollector(),
		strategies:       make(map[string]StrategyConstructor),
	}

	f.RegisterStrategy(&FixedWindowConstructor{})
	f.RegisterStrategy(&FixedWindowConstructor{name: FixedCounterStrategy})
	f.RegisterStrategy(&SlidingWindowConstructor{})
	f.RegisterStrategy(&TokenBucketConstructor{})
	f.RegisterStrategy(&LeakyBucketConstructor{})
	f.RegisterStrategy(&AdaptiveConstructor{})

	return f
}

// WithMetrics sets the collector used to decorate created limiters.
func (f *Factory) WithMetrics(collector metrics.Collector) *Factory {
	f.metricsCollector = collector
	return f
}

// WithAdaptive replaces the adaptive constructor with one using settings.
func (f *Factory) WithAdaptive(settings AdaptiveSettings) *Factory {
	f.RegisterStrategy(&AdaptiveConstructor{settings: settings})
	return f
}

func (f *Factory) Storage() storage.Storage {
	return f.storage
}

func (f *Factory) RegisterStrategy(constructor StrategyConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategies[constructor.Name()] = constructor
}

func (f *Factory) GetAvailableStrategies() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.strategies))
	for name := range f.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Factory) CreateRateLimiter(cfg Config) (RateLimiter, error) {
	strategy := string(cfg.EffectiveStrategy())

	f.mu.RLock()
	constructor, exists := f.strategies[strategy]
	f.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, strategy)
	}

	rateLimiter, err := constructor.NewFromConfig(cfg, f.storage)
	if err != nil {
		return nil, err
	}

	if f.metricsCollector != nil {
		return NewMetricsDecorator(rateLimiter, f.metricsCollector, strategy), nil
	}
	return rateLimiter, nil
}

// ConfigFromRoute converts a configured route category.
func ConfigFromRoute(route config.RouteConfig) Config {
	return Config{
		Window:   route.Window,
		Max:      route.Max,
		Strategy: Strategy(route.Strategy),
		Message:  route.Message,
	}
}

func ConfigsFromRoutes(routes map[string]config.RouteConfig) map[string]Config {
	out := make(map[string]Config, len(routes))
	for name, route := range routes {
		out[name] = ConfigFromRoute(route)
	}
	return out
}
