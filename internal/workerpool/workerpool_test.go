package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidSizes(t *testing.T) {
	tests := []struct {
		name     string
		workers  int
		capacity int
	}{
		{"zero workers", 0, 10},
		{"negative workers", -1, 10},
		{"zero capacity", 4, 0},
		{"negative capacity", 4, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.workers, tt.capacity, func(int) {})
			assert.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestRunsAllTasks(t *testing.T) {
	var sum atomic.Int64
	p, err := New(4, 100, func(n int) { sum.Add(int64(n)) })
	require.NoError(t, err)

	for i := 1; i <= 100; i++ {
		require.NoError(t, p.Submit(i))
	}
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int64(5050), sum.Load())
}

func TestSubmitFailsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	p, err := New(1, 2, func(int) {
		once.Do(func() { close(started) })
		<-release
	})
	require.NoError(t, err)

	// Occupy the single worker, then fill the queue.
	require.NoError(t, p.Submit(0))
	<-started
	require.NoError(t, p.Submit(1))
	require.NoError(t, p.Submit(2))
	assert.Equal(t, 2, p.Len())

	assert.ErrorIs(t, p.Submit(3), ErrQueueFull)
	assert.Equal(t, 2, p.Len(), "a rejected submit leaves the queue unchanged")

	// Draining one slot lets the next submit through.
	release <- struct{}{}
	require.Eventually(t, func() bool { return p.Len() < 2 }, time.Second, time.Millisecond)
	assert.NoError(t, p.Submit(3))

	close(release)
	require.NoError(t, p.Stop(context.Background()))
}

func TestSubmitAfterStop(t *testing.T) {
	p, err := New(2, 4, func(int) {})
	require.NoError(t, err)

	require.NoError(t, p.Stop(context.Background()))
	require.NoError(t, p.Stop(context.Background()))
	assert.ErrorIs(t, p.Submit(1), ErrStopped)
}

func TestStopDeadlineDiscardsQueued(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int32
	var once sync.Once

	p, err := New(1, 8, func(int) {
		ran.Add(1)
		once.Do(func() { close(started) })
		<-release
	})
	require.NoError(t, err)

	require.NoError(t, p.Submit(0))
	<-started
	for i := 1; i < 5; i++ {
		require.NoError(t, p.Submit(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go func() {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)
	assert.Equal(t, int32(1), ran.Load())
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	var ok atomic.Int32
	p, err := New(1, 4, func(n int) {
		if n == 0 {
			panic("boom")
		}
		ok.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, p.Submit(0))
	require.NoError(t, p.Submit(1))
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int32(1), ok.Load())
}
