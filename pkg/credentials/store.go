// Package credentials holds the user accounts checked by the login and
// register actions.
//
// Accounts live in a Store (in memory or persisted with BadgerDB). At startup
// the server loads every account into an Index once; lookups are then served
// from memory and registrations are written through to the Store using a
// pooled handle.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/tinyhttpd/pkg/dbpool"
)

var (
	// ErrUserExists is returned when registering a name that is taken.
	ErrUserExists = errors.New("credentials: user already exists")

	// ErrInvalidAccount is returned for an empty user name or password.
	ErrInvalidAccount = errors.New("credentials: user and password are required")
)

// Store persists accounts.
type Store interface {
	// List returns every stored account as user -> password.
	List(ctx context.Context) (map[string]string, error)

	// Put stores or replaces one account.
	Put(ctx context.Context, user, password string) error

	// Close releases the store.
	Close() error
}

// Conn is a pooled handle onto a Store. The pool bounds how many requests
// touch the store concurrently.
type Conn struct {
	id    int
	store Store
}

// ID returns the handle's slot number in its pool.
func (c *Conn) ID() int {
	return c.id
}

func (c *Conn) put(ctx context.Context, user, password string) error {
	return c.store.Put(ctx, user, password)
}

// NewConnPool creates size handles onto store.
func NewConnPool(store Store, size int) (*dbpool.Pool[*Conn], error) {
	if store == nil {
		return nil, fmt.Errorf("credentials: store is required")
	}
	return dbpool.New(size, func(i int) (*Conn, error) {
		return &Conn{id: i, store: store}, nil
	}, nil)
}
