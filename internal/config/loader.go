package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "RATELIMIT"

// Loader reads configuration from defaults, an optional yaml file, an
// optional .env file and the environment, in increasing precedence.
type Loader struct {
	v    *viper.Viper
	path string
}

func NewLoader(path string) *Loader {
	return &Loader{v: viper.New(), path: path}
}

// Load is a convenience wrapper for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v)

	if err := l.loadConfigFile(); err != nil {
		return nil, err
	}

	if err := loadDotEnvFile(l.v); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(l.v)

	return l.decode()
}

// ConfigFileUsed returns the file viper read, or "" when running on
// defaults and environment only.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch re-reads the config file whenever it changes and hands the
// validated result to onChange. Invalid edits are reported with a nil
// config so the caller can keep the previous one.
func (l *Loader) Watch(logger *slog.Logger, onChange func(*Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		logger.Info("no config file in use, hot reload disabled")
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
		onChange(l.decode())
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.check_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.dial_timeout", 2*time.Second)

	v.SetDefault("storage.backend", "redis")
	v.SetDefault("storage.fallback_to_memory", true)
	v.SetDefault("storage.sweep_interval", 5*time.Minute)
	v.SetDefault("storage.cleanup_schedule", "@every 5m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:ratelimit.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	v.SetDefault("database.max_open_conns", 1)

	v.SetDefault("deployment.instances", 1)

	for name, route := range DefaultRateLimits() {
		prefix := "rate_limits." + name + "."
		v.SetDefault(prefix+"window", route.Window)
		v.SetDefault(prefix+"max", route.Max)
		v.SetDefault(prefix+"strategy", route.Strategy)
		v.SetDefault(prefix+"message", route.Message)
	}

	v.SetDefault("adaptive.load_threshold", 0.8)
	v.SetDefault("adaptive.scale_factor", 0.5)
	v.SetDefault("adaptive.capacity", 512)

	v.SetDefault("dynamic.timezone", "Local")
	v.SetDefault("dynamic.business_hours_start", 9)
	v.SetDefault("dynamic.business_hours_end", 18)

	v.SetDefault("ddos.enabled", true)
	v.SetDefault("ddos.user_agent_patterns", []string{"bot", "crawler", "scraper"})
	v.SetDefault("ddos.block_duration", time.Hour)
	v.SetDefault("ddos.requests_per_second", 0)
	v.SetDefault("ddos.burst", 0)

	v.SetDefault("event_log.enabled", true)
	v.SetDefault("event_log.sink", "memory")
	v.SetDefault("event_log.flush_schedule", "@every 30s")
	v.SetDefault("event_log.max_entries", 1000)

	v.SetDefault("admin.token", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// DefaultRateLimits is the built-in category table.
func DefaultRateLimits() map[string]RouteConfig {
	return map[string]RouteConfig{
		"general": {
			Window:   15 * time.Minute,
			Max:      100,
			Strategy: "sliding_window",
			Message:  "Too many requests, please try again later.",
		},
		"auth": {
			Window:   15 * time.Minute,
			Max:      5,
			Strategy: "sliding_window",
			Message:  "Too many authentication attempts, please try again later.",
		},
		"api": {
			Window:   time.Minute,
			Max:      60,
			Strategy: "token_bucket",
			Message:  "API rate limit exceeded, please try again later.",
		},
		"upload": {
			Window:   time.Hour,
			Max:      10,
			Strategy: "fixed_window",
			Message:  "Upload limit exceeded, please try again later.",
		},
		"ai": {
			Window:   time.Minute,
			Max:      20,
			Strategy: "token_bucket",
			Message:  "AI service rate limit exceeded, please try again later.",
		},
		"database": {
			Window:   time.Minute,
			Max:      100,
			Strategy: "leaky_bucket",
			Message:  "Database rate limit exceeded, please try again later.",
		},
		"admin": {
			Window:   time.Minute,
			Max:      30,
			Strategy: "adaptive",
			Message:  "Admin rate limit exceeded, please try again later.",
		},
	}
}

func (l *Loader) loadConfigFile() error {
	if l.path != "" {
		l.v.SetConfigFile(l.path)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", l.path, err)
		}
		return nil
	}

	l.v.SetConfigName("config")
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	l.v.AddConfigPath("./config")

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func loadDotEnvFile(v *viper.Viper) error {
	envFile := ".env"
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(envFile)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read .env file: %w", err)
	}

	// .env keys use the same names as real environment variables.
	prefix := strings.ToLower(envPrefix) + "_"
	for _, key := range env.AllKeys() {
		switch {
		case key == "redis_url":
			v.Set("redis.url", env.GetString(key))
		case strings.HasPrefix(key, prefix):
			v.Set(envKeyToPath(strings.TrimPrefix(key, prefix)), env.Get(key))
		}
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// REDIS_URL is honoured without the prefix for compatibility with
	// hosting platforms that inject it.
	_ = v.BindEnv("redis.url", envPrefix+"_REDIS_URL", "REDIS_URL")
}

// envKeyToPath maps "storage_backend" to "storage.backend". Section names
// containing underscores are matched against the known sections first.
func envKeyToPath(key string) string {
	for _, section := range []string{"rate_limits", "event_log"} {
		if strings.HasPrefix(key, section+"_") {
			rest := strings.TrimPrefix(key, section+"_")
			if section == "rate_limits" {
				if i := strings.Index(rest, "_"); i > 0 {
					return section + "." + rest[:i] + "." + rest[i+1:]
				}
			}
			return section + "." + rest
		}
	}
	if i := strings.Index(key, "_"); i > 0 {
		return key[:i] + "." + key[i+1:]
	}
	return key
}
