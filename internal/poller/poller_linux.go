//go:build linux

// Package poller wraps epoll for the server's event loop.
//
// Registrations carry an interest set plus flags selecting edge-triggered
// delivery, one-shot delivery and peer half-close reporting. A one-shot
// registration stays inert after it fires until Modify re-arms it. Each
// registration also stores a caller-chosen tag that comes back with its
// events, so a caller reusing fds can tell which registration fired.
package poller

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Events is an I/O readiness set.
type Events uint32

const (
	// EventRead means the fd is readable (or a listener has a pending connection).
	EventRead Events = 1 << iota
	// EventWrite means the fd is writable.
	EventWrite
	// EventError reports an error condition.
	EventError
	// EventHangup reports that both directions are closed.
	EventHangup
	// EventPeerClosed reports that the peer shut down its writing half.
	EventPeerClosed
)

// Flags select delivery semantics for a registration.
type Flags uint32

const (
	// FlagEdgeTriggered delivers one event per readiness change.
	FlagEdgeTriggered Flags = 1 << iota
	// FlagOneShot disables the registration after one delivery.
	FlagOneShot
	// FlagPeerClose requests EventPeerClosed notifications.
	FlagPeerClose
)

// DefaultMaxEvents is the number of events returned by one Wait call.
const DefaultMaxEvents = 10000

var ErrClosed = errors.New("poller: closed")

// Event is one readiness notification.
type Event struct {
	Fd     int
	Tag    uint32
	Events Events
}

// Closing reports whether the event signals that the connection is gone.
func (e Event) Closing() bool {
	return e.Events&(EventError|EventHangup|EventPeerClosed) != 0
}

// Poller owns one epoll instance. Add, Modify and Remove may be called from
// any goroutine; Wait must only be called from one.
type Poller struct {
	epfd   int
	buf    []unix.EpollEvent
	out    []Event
	closed atomic.Bool
}

// New creates an epoll instance returning at most maxEvents per Wait.
func New(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{
		epfd: epfd,
		buf:  make([]unix.EpollEvent, maxEvents),
		out:  make([]Event, 0, maxEvents),
	}, nil
}

// Add registers fd for events. tag is reported back in every Event for fd.
func (p *Poller) Add(fd int, tag uint32, events Events, flags Flags) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, tag, events, flags)
}

// Modify replaces the interest set and tag of fd. For one-shot
// registrations this is the re-arm operation.
func (p *Poller) Modify(fd int, tag uint32, events Events, flags Flags) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, tag, events, flags)
}

// Remove deregisters fd.
func (p *Poller) Remove(fd int) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *Poller) ctl(op, fd int, tag uint32, events Events, flags Flags) error {
	if p.closed.Load() {
		return ErrClosed
	}
	// The 64-bit epoll data word holds the fd in its low half and the tag
	// in its high half.
	ev := &unix.EpollEvent{
		Events: toEpoll(events, flags),
		Fd:     int32(fd),
		Pad:    int32(tag),
	}
	return unix.EpollCtl(p.epfd, op, fd, ev)
}

// Wait blocks up to timeoutMs (-1 for no limit) and returns the ready
// events. The returned slice is reused by the next call. An interrupted
// wait returns no events and no error.
func (p *Poller) Wait(timeoutMs int) ([]Event, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	n, err := unix.EpollWait(p.epfd, p.buf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return p.out[:0], nil
		}
		return nil, err
	}

	out := p.out[:0]
	for i := 0; i < n; i++ {
		out = append(out, Event{
			Fd:     int(p.buf[i].Fd),
			Tag:    uint32(p.buf[i].Pad),
			Events: fromEpoll(p.buf[i].Events),
		})
	}
	p.out = out
	return out, nil
}

// Close releases the epoll instance.
func (p *Poller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.epfd)
}

func toEpoll(events Events, flags Flags) uint32 {
	var ev uint32
	if events&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	if flags&FlagEdgeTriggered != 0 {
		ev |= unix.EPOLLET
	}
	if flags&FlagOneShot != 0 {
		ev |= unix.EPOLLONESHOT
	}
	if flags&FlagPeerClose != 0 {
		ev |= unix.EPOLLRDHUP
	}
	return ev
}

func fromEpoll(ev uint32) Events {
	var events Events
	if ev&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if ev&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if ev&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	if ev&unix.EPOLLRDHUP != 0 {
		events |= EventPeerClosed
	}
	return events
}
