package credentials

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
)

// Index is the in-memory view of all accounts. A single lock covers both
// lookups and registrations.
type Index struct {
	mu    sync.Mutex
	users map[string]string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{users: make(map[string]string)}
}

// Load builds an index from every account in store.
func Load(ctx context.Context, store Store) (*Index, error) {
	users, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	idx := NewIndex()
	for user, password := range users {
		idx.users[user] = password
	}
	return idx, nil
}

// Verify reports whether user exists with the given password.
func (i *Index) Verify(user, password string) bool {
	i.mu.Lock()
	stored, ok := i.users[user]
	i.mu.Unlock()

	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// Register adds a new account, persisting it through conn. The existence
// check, the store write and the index insert happen under one lock, so two
// concurrent registrations of the same name cannot both succeed. A failed
// store write leaves the index unchanged.
func (i *Index) Register(ctx context.Context, conn *Conn, user, password string) error {
	if user == "" || password == "" {
		return ErrInvalidAccount
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.users[user]; ok {
		return ErrUserExists
	}
	if conn != nil {
		if err := conn.put(ctx, user, password); err != nil {
			return fmt.Errorf("failed to persist account %q: %w", user, err)
		}
	}
	i.users[user] = password
	return nil
}

// Len returns the number of accounts.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.users)
}

// Session binds an index to one pooled handle for the duration of a request.
type Session struct {
	index *Index
	conn  *Conn
}

// Session returns a view of i that persists registrations through conn.
func (i *Index) Session(conn *Conn) *Session {
	return &Session{index: i, conn: conn}
}

func (s *Session) Verify(user, password string) bool {
	return s.index.Verify(user, password)
}

func (s *Session) Register(ctx context.Context, user, password string) error {
	return s.index.Register(ctx, s.conn, user, password)
}
