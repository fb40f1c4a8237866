package config

import (
	"testing"
	"time"

	"github.com/marmos91/tinyhttpd/internal/server"
)

func TestApplyDefaults_Empty(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults %+v", cfg.Logging)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Server.BindAddress != "0.0.0.0" {
		t.Errorf("Expected bind address 0.0.0.0, got %q", cfg.Server.BindAddress)
	}
	if cfg.Server.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", cfg.Server.Workers)
	}
	if cfg.Server.QueueCapacity != 10000 {
		t.Errorf("Expected queue capacity 10000, got %d", cfg.Server.QueueCapacity)
	}
	if cfg.Server.IdleTimeout != 15*time.Second {
		t.Errorf("Expected idle timeout 15s, got %v", cfg.Server.IdleTimeout)
	}
	if cfg.Server.TickInterval != 5*time.Second {
		t.Errorf("Expected tick interval 5s, got %v", cfg.Server.TickInterval)
	}
	if cfg.Credentials.Type != "memory" || cfg.Credentials.PoolSize != 8 {
		t.Errorf("Unexpected credentials defaults %+v", cfg.Credentials)
	}
	if cfg.Credentials.Badger["db_path"] != "./data/credentials" {
		t.Errorf("Expected default badger db_path, got %v", cfg.Credentials.Badger["db_path"])
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Expected metrics port %d, got %d", DefaultMetricsPort, cfg.Metrics.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "error"},
		Server: server.Config{
			Port:     8080,
			DocRoot:  "/srv/www",
			Model:    server.ModelReactor,
			TrigMode: 3,
			Workers:  2,
		},
		Credentials: CredentialsConfig{
			Type:   "BADGER",
			Badger: map[string]any{"db_path": "/tmp/creds"},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level normalized to ERROR, got %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != 8080 || cfg.Server.DocRoot != "/srv/www" {
		t.Errorf("Explicit server values overwritten: %+v", cfg.Server)
	}
	if cfg.Server.Model != server.ModelReactor || cfg.Server.TrigMode != 3 || cfg.Server.Workers != 2 {
		t.Errorf("Explicit server values overwritten: %+v", cfg.Server)
	}
	if cfg.Credentials.Type != "badger" {
		t.Errorf("Expected type normalized to badger, got %q", cfg.Credentials.Type)
	}
	if cfg.Credentials.Badger["db_path"] != "/tmp/creds" {
		t.Errorf("Explicit db_path overwritten: %v", cfg.Credentials.Badger["db_path"])
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
}
