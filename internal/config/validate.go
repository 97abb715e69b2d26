package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	ErrMemoryBackendMultiInstance = errors.New("memory storage backend cannot be used with more than one instance")
	ErrNoRateLimits               = errors.New("at least one rate limit category is required")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the rules that span several sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if len(cfg.RateLimits) == 0 {
		return ErrNoRateLimits
	}

	if cfg.Storage.Backend == "memory" && cfg.Deployment.Instances > 1 {
		return ErrMemoryBackendMultiInstance
	}

	if cfg.Storage.Backend == "database" && cfg.Database.DSN == "" {
		return errors.New("invalid configuration: database.dsn is required for the database backend")
	}

	if cfg.EventLog.Sink == "database" && cfg.Database.DSN == "" {
		return errors.New("invalid configuration: database.dsn is required for the database event log sink")
	}

	for _, schedule := range []struct {
		name, expr string
	}{
		{"storage.cleanup_schedule", cfg.Storage.CleanupSchedule},
		{"event_log.flush_schedule", cfg.EventLog.FlushSchedule},
	} {
		if schedule.expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(schedule.expr); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", schedule.name, err)
		}
	}

	if _, err := cfg.Dynamic.Location(); err != nil {
		return fmt.Errorf("invalid configuration: dynamic.timezone: %w", err)
	}

	return nil
}

// ValidateRateLimits checks a category table on its own, for runtime
// updates that do not go through Load.
func ValidateRateLimits(routes map[string]RouteConfig) error {
	if len(routes) == 0 {
		return ErrNoRateLimits
	}
	for name, route := range routes {
		if name == "" {
			return errors.New("rate limit category name must not be empty")
		}
		if err := validate.Struct(route); err != nil {
			return fmt.Errorf("rate limit %q: %w", name, err)
		}
	}
	return nil
}

// Location resolves the configured timezone. Empty or "Local" means the
// process timezone.
func (d DynamicConfig) Location() (*time.Location, error) {
	if d.Timezone == "" || d.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(d.Timezone)
}
