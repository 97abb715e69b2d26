package ratelimit

import (
	"fmt"
	"sort"
	"sync"
)

// StrategyManager owns the limiter for every route category and lets the
// table change while requests are being served.
type StrategyManager interface {
	Limiter(category string) (RateLimiter, Config, bool)
	UpdateStrategy(category string, config Config) error
	ReplaceAll(configs map[string]Config) error
	Configs() map[string]Config
	Categories() []string
	GetAvailableStrategies() []string
}

type categoryEntry struct {
	config  Config
	limiter RateLimiter
}

type ConfigBasedStrategyManager struct {
	factory *Factory

	mu      sync.RWMutex
	entries map[string]categoryEntry
}

var _ StrategyManager = (*ConfigBasedStrategyManager)(nil)

func NewConfigBasedStrategyManager(factory *Factory, configs map[string]Config) (*ConfigBasedStrategyManager, error) {
	m := &ConfigBasedStrategyManager{
		factory: factory,
		entries: make(map[string]categoryEntry),
	}
	if err := m.ReplaceAll(configs); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ConfigBasedStrategyManager) Limiter(category string) (RateLimiter, Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[category]
	return entry.limiter, entry.config, ok
}

// Register installs a prebuilt limiter for category.
func (m *ConfigBasedStrategyManager) Register(category string, config Config, limiter RateLimiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[category] = categoryEntry{config: config, limiter: limiter}
}

func (m *ConfigBasedStrategyManager) UpdateStrategy(category string, config Config) error {
	if category == "" {
		return fmt.Errorf("%w: category name is required", ErrInvalidConfig)
	}

	limiter, err := m.factory.CreateRateLimiter(config)
	if err != nil {
		return fmt.Errorf("category %s: %w", category, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[category] = categoryEntry{config: config, limiter: limiter}
	return nil
}

// ReplaceAll builds every limiter first and swaps the whole table only
// when all of them succeed.
func (m *ConfigBasedStrategyManager) ReplaceAll(configs map[string]Config) error {
	entries := make(map[string]categoryEntry, len(configs))
	for category, config := range configs {
		limiter, err := m.factory.CreateRateLimiter(config)
		if err != nil {
			return fmt.Errorf("category %s: %w", category, err)
		}
		entries[category] = categoryEntry{config: config, limiter: limiter}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	return nil
}

func (m *ConfigBasedStrategyManager) Configs() map[string]Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Config, len(m.entries))
	for category, entry := range m.entries {
		out[category] = entry.config
	}
	return out
}

func (m *ConfigBasedStrategyManager) Categories() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.entries))
	for category := range m.entries {
		names = append(names, category)
	}
	sort.Strings(names)
	return names
}

func (m *ConfigBasedStrategyManager) GetAvailableStrategies() []string {
	return m.factory.GetAvailableStrategies()
}
