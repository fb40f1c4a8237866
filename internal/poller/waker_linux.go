//go:build linux

package poller

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Waker is an eventfd that other goroutines write to in order to wake a
// goroutine blocked in Wait. Register Fd with EventRead.
type Waker struct {
	fd int
}

func NewWaker() (*Waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &Waker{fd: fd}, nil
}

func (w *Waker) Fd() int {
	return w.fd
}

// Wake makes Fd readable. A saturated counter is already readable, so
// EAGAIN is not an error.
func (w *Waker) Wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(w.fd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			return nil
		case unix.EINTR:
			continue
		default:
			return err
		}
	}
}

// Drain resets the counter and returns how many wakes were pending.
func (w *Waker) Drain() (uint64, error) {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		switch err {
		case nil:
			return binary.NativeEndian.Uint64(buf[:]), nil
		case unix.EAGAIN:
			return 0, nil
		case unix.EINTR:
			continue
		default:
			return 0, err
		}
	}
}

func (w *Waker) Close() error {
	return unix.Close(w.fd)
}
