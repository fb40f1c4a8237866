//go:build linux

package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := New(16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestOneShotRequiresRearm(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	require.NoError(t, p.Add(a, 0, EventRead, FlagOneShot))
	_, err := unix.Write(b, []byte("ping"))
	require.NoError(t, err)

	events, err := p.Wait(1000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, a, events[0].Fd)
	assert.NotZero(t, events[0].Events&EventRead)

	// Data is still unread, but the one-shot registration is inert.
	events, err = p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, p.Modify(a, 0, EventRead, FlagOneShot))
	events, err = p.Wait(1000)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLevelTriggeredRepeats(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	require.NoError(t, p.Add(a, 0, EventRead, 0))
	_, err := unix.Write(b, []byte("x"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		events, err := p.Wait(1000)
		require.NoError(t, err)
		assert.Len(t, events, 1, "level-triggered readiness is reported while data is pending")
	}
}

func TestEdgeTriggeredFiresOncePerChange(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	require.NoError(t, p.Add(a, 0, EventRead, FlagEdgeTriggered))
	_, err := unix.Write(b, []byte("x"))
	require.NoError(t, err)

	events, err := p.Wait(1000)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPeerCloseReported(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	require.NoError(t, p.Add(a, 0, EventRead, FlagOneShot|FlagPeerClose))
	require.NoError(t, unix.Shutdown(b, unix.SHUT_WR))

	events, err := p.Wait(1000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Closing())
}

func TestRemove(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	require.NoError(t, p.Add(a, 0, EventRead, 0))
	require.NoError(t, p.Remove(a))
	_, err := unix.Write(b, []byte("x"))
	require.NoError(t, err)

	events, err := p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestWaker(t *testing.T) {
	p := newPoller(t)
	w, err := NewWaker()
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, p.Add(w.Fd(), 0, EventRead, 0))
	require.NoError(t, w.Wake())
	require.NoError(t, w.Wake())

	events, err := p.Wait(1000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, w.Fd(), events[0].Fd)

	n, err := w.Drain()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	n, err = w.Drain()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClosedPoller(t *testing.T) {
	p, err := New(0)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Wait(0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Add(0, 0, EventRead, 0), ErrClosed)
}

func TestTagIsReportedAndReplacedOnModify(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	require.NoError(t, p.Add(a, 7, EventRead, FlagOneShot))
	_, err := unix.Write(b, []byte("x"))
	require.NoError(t, err)

	events, err := p.Wait(1000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, a, events[0].Fd)
	assert.Equal(t, uint32(7), events[0].Tag)

	require.NoError(t, p.Modify(a, 0xfffffffe, EventRead, FlagOneShot))
	events, err = p.Wait(1000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint32(0xfffffffe), events[0].Tag)
}
