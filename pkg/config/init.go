package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# tinyhttpd Configuration File
#
# Every key can be overridden with an environment variable named
# TINYHTTPD_<SECTION>_<KEY>, for example TINYHTTPD_SERVER_PORT=8080.
#
# server.trig_mode selects epoll trigger modes:
#   0 = listener LT, connections LT
#   1 = listener LT, connections ET
#   2 = listener ET, connections LT
#   3 = listener ET, connections ET
#
# server.model is "proactor" (the event loop does socket I/O) or
# "reactor" (workers do socket I/O).

`

// InitConfig writes a configuration file with default values to the default
// location and returns its path. An existing file is only replaced when force
// is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	content := append([]byte(configHeader), data...)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
