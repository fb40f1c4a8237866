package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/internal/server"
	"github.com/spf13/viper"
)

// Config represents the complete tinyhttpd configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (TINYHTTPD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// The credential store follows a type-specific section pattern: the
// Credentials section names a store type and only the sub-section matching
// that type is decoded by the store factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains the HTTP server settings
	Server server.Config `mapstructure:"server" yaml:"server"`

	// Credentials selects where user accounts are persisted
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`

	// SplitLines rolls a file output over after this many lines.
	// 0 rotates daily only.
	SplitLines int64 `mapstructure:"split_lines" yaml:"split_lines" validate:"min=0"`

	// AsyncQueueSize enables asynchronous logging with a queue of this size.
	AsyncQueueSize int `mapstructure:"async_queue_size" yaml:"async_queue_size" validate:"min=0"`
}

// LoggerConfig converts the section into the logger's own configuration.
func (c LoggingConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:          c.Level,
		Format:         c.Format,
		Output:         c.Output,
		SplitLines:     c.SplitLines,
		AsyncQueueSize: c.AsyncQueueSize,
	}
}

// CredentialsConfig specifies the credential store.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type CredentialsConfig struct {
	// Type specifies which credential store implementation to use
	// Valid values: memory, badger, none
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger none"`

	// PoolSize is the number of store handles shared by the workers
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size" validate:"min=0"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the /metrics endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the metrics HTTP port
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TINYHTTPD_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are bound explicitly so Unmarshal sees them even when the
// config file does not mention the key.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.port",
	"server.bind_address",
	"server.doc_root",
	"server.trig_mode",
	"server.model",
	"server.workers",
	"server.idle_timeout",
	"credentials.type",
	"credentials.pool_size",
	"metrics.enabled",
	"metrics.port",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: TINYHTTPD_SERVER_PORT=8080
	v.SetEnvPrefix("TINYHTTPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/tinyhttpd/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is only an error when its path was given explicitly.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && configPath == "" {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tinyhttpd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "tinyhttpd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
