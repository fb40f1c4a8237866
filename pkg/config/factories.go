package config

import (
	"context"
	"fmt"

	"github.com/marmos91/tinyhttpd/pkg/credentials"
	"github.com/marmos91/tinyhttpd/pkg/credentials/badger"
	"github.com/marmos91/tinyhttpd/pkg/credentials/memory"
	"github.com/mitchellh/mapstructure"
)

// CreateCredentialStore creates a credential store based on configuration.
//
// It returns nil with no error when Type is "none"; the server then runs
// without the login and register actions.
//
// Supported types:
//   - memory: accounts seeded from credentials.memory.users, lost on restart
//   - badger: accounts persisted in a BadgerDB database
func CreateCredentialStore(ctx context.Context, cfg *CredentialsConfig) (credentials.Store, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryCredentialStore(cfg.Memory)
	case "badger":
		return createBadgerCredentialStore(ctx, cfg.Badger)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown credential store type: %q", cfg.Type)
	}
}

// createMemoryCredentialStore creates an in-memory credential store.
func createMemoryCredentialStore(options map[string]any) (credentials.Store, error) {
	var memCfg struct {
		Users map[string]string `mapstructure:"users"`
	}
	if err := mapstructure.Decode(options, &memCfg); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	return memory.New(memCfg.Users), nil
}

// createBadgerCredentialStore creates a BadgerDB-backed credential store.
func createBadgerCredentialStore(ctx context.Context, options map[string]any) (credentials.Store, error) {
	var badgerCfg badger.Config
	if err := mapstructure.Decode(options, &badgerCfg); err != nil {
		return nil, fmt.Errorf("invalid badger config: %w", err)
	}

	store, err := badger.New(ctx, badgerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger credential store: %w", err)
	}

	return store, nil
}
