// Package badger implements credentials.Store on top of BadgerDB so that
// registered accounts survive restarts.
//
// Each account is one key, "user:<name>", whose value is the password.
package badger

import (
	"context"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const userPrefix = "user:"

// Config configures a BadgerDB-backed store.
type Config struct {
	// DBPath is the directory holding the database files.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps the database in memory only. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is the block cache size in MB (default: 16).
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is the index cache size in MB (default: 8).
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// Store is a BadgerDB credential store. The DB handle is safe for
// concurrent use.
type Store struct {
	db *badger.DB
}

// New opens (creating if needed) the database described by config.
func New(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !config.InMemory && config.DBPath == "" {
		return nil, fmt.Errorf("badger credential store: db_path is required")
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.DBPath)
	}

	// Accounts are tiny; keep caches small and skip compression.
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 16
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 8
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}
	return &Store{db: db}, nil
}

func userKey(user string) []byte {
	return []byte(userPrefix + user)
}

// List scans every account key.
func (s *Store) List(ctx context.Context) (map[string]string, error) {
	users := make(map[string]string)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			user := strings.TrimPrefix(string(item.Key()), userPrefix)
			if err := item.Value(func(val []byte) error {
				users[user] = string(val)
				return nil
			}); err != nil {
				return fmt.Errorf("failed to read account %q: %w", user, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Put writes one account.
func (s *Store) Put(ctx context.Context, user, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user), []byte(password))
	})
}

// Get reads one account's password.
func (s *Store) Get(ctx context.Context, user string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var password string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(user))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			password = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return password, true, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
