package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	srv := &cfg.Server

	if srv.Workers <= 0 {
		return fmt.Errorf("server.workers: must be positive, got %d", srv.Workers)
	}
	if srv.QueueCapacity <= 0 {
		return fmt.Errorf("server.queue_capacity: must be positive, got %d", srv.QueueCapacity)
	}
	if srv.IdleTimeout <= 0 {
		return fmt.Errorf("server.idle_timeout: must be positive, got %v", srv.IdleTimeout)
	}
	if srv.TickInterval <= 0 || srv.TickInterval > srv.IdleTimeout {
		return fmt.Errorf("server.tick_interval: %v must be positive and not exceed idle_timeout %v",
			srv.TickInterval, srv.IdleTimeout)
	}
	if srv.AcceptBurst > 0 && srv.AcceptRate == 0 {
		return fmt.Errorf("server.accept_burst: set without accept_rate")
	}

	if cfg.Credentials.Type != "none" && cfg.Credentials.PoolSize <= 0 {
		return fmt.Errorf("credentials.pool_size: must be positive, got %d", cfg.Credentials.PoolSize)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == srv.Port {
		return fmt.Errorf("metrics.port: %d conflicts with server.port", cfg.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
