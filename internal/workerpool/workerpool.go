// Package workerpool runs tasks on a fixed set of goroutines fed by a bounded
// FIFO queue.
//
// Submit never blocks: when the queue is at capacity it returns ErrQueueFull
// and the queue is left unchanged. This is the server's admission control;
// callers decide whether to drop or retry.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrQueueFull is returned by Submit when the queue is at capacity.
	ErrQueueFull = errors.New("workerpool: task queue is full")

	// ErrStopped is returned by Submit after Stop has been called.
	ErrStopped = errors.New("workerpool: pool is stopped")
)

// Pool executes handle(task) for every submitted task on one of its workers.
type Pool[T any] struct {
	tasks   chan T
	handle  func(T)
	workers int

	mu      sync.RWMutex
	stopped bool

	discard atomic.Bool
	group   errgroup.Group
	done    chan struct{}
}

// New starts workers goroutines consuming a queue of the given capacity.
func New[T any](workers, capacity int, handle func(T)) (*Pool[T], error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workerpool: worker count must be positive, got %d", workers)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("workerpool: queue capacity must be positive, got %d", capacity)
	}
	if handle == nil {
		return nil, errors.New("workerpool: handler is required")
	}

	p := &Pool[T]{
		tasks:   make(chan T, capacity),
		handle:  handle,
		workers: workers,
		done:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			p.run()
			return nil
		})
	}
	go func() {
		_ = p.group.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *Pool[T]) run() {
	for task := range p.tasks {
		if p.discard.Load() {
			continue
		}
		p.execute(task)
	}
}

func (p *Pool[T]) execute(task T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in worker: %v\n%s", r, debug.Stack())
		}
	}()
	p.handle(task)
}

// Submit enqueues task without blocking.
func (p *Pool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of queued tasks not yet picked up by a worker.
func (p *Pool[T]) Len() int {
	return len(p.tasks)
}

// Cap returns the queue capacity.
func (p *Pool[T]) Cap() int {
	return cap(p.tasks)
}

// Workers returns the number of worker goroutines.
func (p *Pool[T]) Workers() int {
	return p.workers
}

// Stop closes the queue and waits for every worker to exit. Tasks already
// queued are still executed unless ctx expires first, in which case the
// remaining ones are discarded and ctx.Err() is returned once the workers
// have finished their current task. Stop is idempotent.
func (p *Pool[T]) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.discard.Store(true)
		<-p.done
		return ctx.Err()
	}
}
