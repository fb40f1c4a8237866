//go:build linux

package server

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// listen opens a non-blocking IPv4 TCP listener and returns it with the
// port actually bound.
func listen(address string, port, backlog int) (int, int, error) {
	ip := net.ParseIP(address).To4()
	if ip == nil {
		return -1, 0, fmt.Errorf("invalid bind address %q", address)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, 0, fmt.Errorf("socket: %w", err)
	}
	fail := func(op string, err error) (int, int, error) {
		_ = unix.Close(fd)
		return -1, 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt SO_REUSEADDR", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip)
	if err := unix.Bind(fd, sa); err != nil {
		return fail(fmt.Sprintf("bind %s:%d", address, port), err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	if in4, ok := bound.(*unix.SockaddrInet4); ok {
		port = in4.Port
	}
	return fd, port, nil
}

// accept takes one pending connection as a non-blocking socket.
func accept(listenFd int) (int, string, error) {
	for {
		fd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR || err == unix.ECONNABORTED {
			continue
		}
		if err != nil {
			return -1, "", err
		}
		return fd, peerString(sa), nil
	}
}

func peerString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		return a.Name
	default:
		return "unknown"
	}
}

// setLinger makes close(2) wait up to one second for unsent data.
func setLinger(fd int) error {
	return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 1})
}

// refuse writes msg best-effort and closes fd.
func refuse(fd int, msg string) {
	_, _ = unix.Write(fd, []byte(msg))
	_ = unix.Close(fd)
}
