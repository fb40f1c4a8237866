package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/tinyhttpd/internal/server"
)

// isolateConfigDir points the default config location at an empty temp dir.
func isolateConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	isolateConfigDir(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Server.DocRoot != "./www" {
		t.Errorf("Expected doc root ./www, got %q", cfg.Server.DocRoot)
	}
	if cfg.Server.Model != server.ModelProactor {
		t.Errorf("Expected proactor model, got %q", cfg.Server.Model)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected INFO level, got %q", cfg.Logging.Level)
	}
	if cfg.Credentials.Type != "memory" {
		t.Errorf("Expected memory credentials, got %q", cfg.Credentials.Type)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
}

func TestLoad_FromFile(t *testing.T) {
	isolateConfigDir(t)

	path := writeConfig(t, `
logging:
  level: debug
  format: json
server:
  port: 8080
  doc_root: /srv/www
  trig_mode: 3
  model: reactor
  workers: 4
  idle_timeout: 30s
  linger: true
credentials:
  type: memory
  pool_size: 2
  memory:
    users:
      alice: secret
metrics:
  enabled: true
  port: 9100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected json format, got %q", cfg.Logging.Format)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.DocRoot != "/srv/www" {
		t.Errorf("Expected doc root /srv/www, got %q", cfg.Server.DocRoot)
	}
	if cfg.Server.TrigMode != 3 {
		t.Errorf("Expected trig mode 3, got %d", cfg.Server.TrigMode)
	}
	if cfg.Server.Model != server.ModelReactor {
		t.Errorf("Expected reactor model, got %q", cfg.Server.Model)
	}
	if cfg.Server.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Server.Workers)
	}
	if cfg.Server.IdleTimeout != 30*time.Second {
		t.Errorf("Expected idle timeout 30s, got %v", cfg.Server.IdleTimeout)
	}
	if cfg.Server.TickInterval != 10*time.Second {
		t.Errorf("Expected tick interval 10s, got %v", cfg.Server.TickInterval)
	}
	if !cfg.Server.Linger {
		t.Error("Expected linger enabled")
	}
	if cfg.Credentials.PoolSize != 2 {
		t.Errorf("Expected pool size 2, got %d", cfg.Credentials.PoolSize)
	}
	if _, ok := cfg.Credentials.Memory["users"]; !ok {
		t.Error("Expected credentials.memory.users to be preserved")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Port != 9100 {
		t.Errorf("Expected metrics enabled on 9100, got %+v", cfg.Metrics)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	isolateConfigDir(t)

	path := writeConfig(t, `
server:
  port: 8080
  trig_mode: 1
`)
	t.Setenv("TINYHTTPD_SERVER_PORT", "7070")
	t.Setenv("TINYHTTPD_SERVER_TRIG_MODE", "2")
	t.Setenv("TINYHTTPD_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Server.TrigMode != 2 {
		t.Errorf("Expected env trig mode 2, got %d", cfg.Server.TrigMode)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected env level WARN, got %q", cfg.Logging.Level)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolateConfigDir(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	isolateConfigDir(t)

	path := writeConfig(t, `
server:
  trig_mode: 7
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error for trig_mode 7")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	isolateConfigDir(t)

	path := writeConfig(t, "server: [port: 1\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for malformed YAML")
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := isolateConfigDir(t)

	if got := GetConfigDir(); got != filepath.Join(dir, "tinyhttpd") {
		t.Errorf("Expected %s, got %s", filepath.Join(dir, "tinyhttpd"), got)
	}
	if got := GetDefaultConfigPath(); got != filepath.Join(dir, "tinyhttpd", "config.yaml") {
		t.Errorf("Unexpected default config path %s", got)
	}
	if ConfigExists() {
		t.Error("Expected no config file in a fresh directory")
	}
}

func TestLoggerConfig(t *testing.T) {
	lc := LoggingConfig{
		Level:          "DEBUG",
		Format:         "json",
		Output:         "/var/log/tinyhttpd.log",
		SplitLines:     5000,
		AsyncQueueSize: 64,
	}

	got := lc.LoggerConfig()
	if got.Level != "DEBUG" || got.Format != "json" || got.Output != "/var/log/tinyhttpd.log" {
		t.Errorf("Unexpected logger config %+v", got)
	}
	if got.SplitLines != 5000 || got.AsyncQueueSize != 64 {
		t.Errorf("Expected rotation and async settings to carry over, got %+v", got)
	}
}
