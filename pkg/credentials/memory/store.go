// Package memory implements credentials.Store in process memory. Accounts
// are lost on restart.
package memory

import (
	"context"
	"sync"
)

type Store struct {
	mu    sync.RWMutex
	users map[string]string
}

// New returns a store pre-populated with seed (may be nil).
func New(seed map[string]string) *Store {
	s := &Store{users: make(map[string]string, len(seed))}
	for user, password := range seed {
		s.users[user] = password
	}
	return s
}

func (s *Store) List(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.users))
	for user, password := range s.users {
		out[user] = password
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, user, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user] = password
	return nil
}

func (s *Store) Close() error {
	return nil
}
