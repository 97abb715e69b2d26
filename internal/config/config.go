package config

import "time"

type Config struct {
	Server     ServerConfig           `mapstructure:"server" yaml:"server"`
	Log        LogConfig              `mapstructure:"log" yaml:"log"`
	Redis      RedisConfig            `mapstructure:"redis" yaml:"redis"`
	Storage    StorageConfig          `mapstructure:"storage" yaml:"storage"`
	Database   DatabaseConfig         `mapstructure:"database" yaml:"database"`
	Deployment DeploymentConfig       `mapstructure:"deployment" yaml:"deployment"`
	RateLimits map[string]RouteConfig `mapstructure:"rate_limits" yaml:"rate_limits" validate:"dive"`
	Adaptive   AdaptiveConfig         `mapstructure:"adaptive" yaml:"adaptive"`
	Dynamic    DynamicConfig          `mapstructure:"dynamic" yaml:"dynamic"`
	DDoS       DDoSConfig             `mapstructure:"ddos" yaml:"ddos"`
	EventLog   EventLogConfig         `mapstructure:"event_log" yaml:"event_log"`
	Admin      AdminConfig            `mapstructure:"admin" yaml:"admin"`
	Metrics    MetricsConfig          `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port" yaml:"port" validate:"required"`
	Mode            string        `mapstructure:"mode" yaml:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	CheckTimeout    time.Duration `mapstructure:"check_timeout" yaml:"check_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

// RedisConfig describes the Redis connection. URL takes precedence over
// Host/Port when both are present.
type RedisConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	Host        string        `mapstructure:"host" yaml:"host"`
	Port        int           `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Password    string        `mapstructure:"password" yaml:"-"`
	DB          int           `mapstructure:"db" yaml:"db" validate:"gte=0"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// Configured reports whether enough connection details are present to
// attempt a Redis connection.
func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Host != ""
}

type StorageConfig struct {
	Backend          string        `mapstructure:"backend" yaml:"backend" validate:"oneof=redis memory database"`
	FallbackToMemory bool          `mapstructure:"fallback_to_memory" yaml:"fallback_to_memory"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval" validate:"gt=0"`
	CleanupSchedule  string        `mapstructure:"cleanup_schedule" yaml:"cleanup_schedule"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN          string `mapstructure:"dsn" yaml:"-"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
}

type DeploymentConfig struct {
	Instances int `mapstructure:"instances" yaml:"instances" validate:"gte=1"`
}

// RouteConfig is the limit applied to one route category.
type RouteConfig struct {
	Window           time.Duration `mapstructure:"window" yaml:"window" validate:"gte=1ms"`
	Max              int64         `mapstructure:"max" yaml:"max" validate:"gte=1"`
	Strategy         string        `mapstructure:"strategy" yaml:"strategy" validate:"omitempty,oneof=fixed_window sliding_window token_bucket leaky_bucket fixed_counter adaptive"`
	Message          string        `mapstructure:"message" yaml:"message"`
	ReleaseOnSuccess bool          `mapstructure:"release_on_success" yaml:"release_on_success,omitempty"`
}

type AdaptiveConfig struct {
	LoadThreshold float64 `mapstructure:"load_threshold" yaml:"load_threshold" validate:"gt=0,lte=1"`
	ScaleFactor   float64 `mapstructure:"scale_factor" yaml:"scale_factor" validate:"gt=0,lte=1"`
	// Capacity is the number of concurrent requests treated as full load.
	Capacity int64 `mapstructure:"capacity" yaml:"capacity" validate:"gte=1"`
}

type DynamicConfig struct {
	Timezone           string `mapstructure:"timezone" yaml:"timezone"`
	BusinessHoursStart int    `mapstructure:"business_hours_start" yaml:"business_hours_start" validate:"gte=0,lte=23"`
	BusinessHoursEnd   int    `mapstructure:"business_hours_end" yaml:"business_hours_end" validate:"gte=0,lte=23,gtefield=BusinessHoursStart"`
}

type DDoSConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	UserAgentPatterns []string      `mapstructure:"user_agent_patterns" yaml:"user_agent_patterns"`
	BlockDuration     time.Duration `mapstructure:"block_duration" yaml:"block_duration" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
}

type EventLogConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Sink          string `mapstructure:"sink" yaml:"sink" validate:"oneof=memory database"`
	FlushSchedule string `mapstructure:"flush_schedule" yaml:"flush_schedule"`
	MaxEntries    int    `mapstructure:"max_entries" yaml:"max_entries" validate:"gte=1"`
}

type AdminConfig struct {
	Token string `mapstructure:"token" yaml:"-"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}
