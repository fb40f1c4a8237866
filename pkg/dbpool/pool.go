// Package dbpool provides a fixed-size pool of reusable handles.
//
// Acquire is the only intentionally blocking acquisition in the server: it
// waits until a handle is returned or the context is done. Handles are
// created once, up front, and closed together with the pool.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("dbpool: pool is closed")

// Pool hands out at most Size handles at a time.
type Pool[T any] struct {
	sem     *semaphore.Weighted
	size    int
	closeFn func(T) error

	mu     sync.Mutex
	free   []T
	closed bool
}

// New opens size handles with open(i) and returns a pool holding them.
// closeFn, if not nil, is called for every handle on Close.
func New[T any](size int, open func(i int) (T, error), closeFn func(T) error) (*Pool[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("dbpool: size must be positive, got %d", size)
	}
	if open == nil {
		return nil, errors.New("dbpool: open function is required")
	}

	p := &Pool[T]{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		closeFn: closeFn,
		free:    make([]T, 0, size),
	}
	for i := 0; i < size; i++ {
		h, err := open(i)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("dbpool: failed to open handle %d: %w", i, err)
		}
		p.free = append(p.free, h)
	}
	return p, nil
}

// Acquire blocks until a handle is free or ctx is done.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.free) == 0 {
		p.sem.Release(1)
		return zero, ErrPoolClosed
	}
	h := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return h, nil
}

// Release returns h to the pool. After Close the handle is closed instead.
func (p *Pool[T]) Release(h T) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if p.closeFn != nil {
			_ = p.closeFn(h)
		}
		p.sem.Release(1)
		return
	}
	p.free = append(p.free, h)
	p.mu.Unlock()
	p.sem.Release(1)
}

// With runs fn with an acquired handle and releases it when fn returns.
func (p *Pool[T]) With(ctx context.Context, fn func(T) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(h)
}

// Free returns the number of idle handles.
func (p *Pool[T]) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size returns the pool capacity.
func (p *Pool[T]) Size() int {
	return p.size
}

// Close closes all idle handles. Handles still checked out are closed when
// they are released.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	free := p.free
	p.free = nil
	p.mu.Unlock()

	var errs []error
	if p.closeFn != nil {
		for _, h := range free {
			if err := p.closeFn(h); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
