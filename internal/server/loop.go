//go:build linux

package server

import (
	"fmt"
	"time"

	"github.com/marmos91/tinyhttpd/internal/httpconn"
	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/internal/poller"
	"github.com/marmos91/tinyhttpd/pkg/metrics"
	"golang.org/x/sys/unix"
)

type commandKind int

const (
	// cmdTick evicts expired connections.
	cmdTick commandKind = iota
	// cmdShutdown stops the event loop.
	cmdShutdown
	// cmdReap closes the connection identified by fd and gen.
	cmdReap
	// cmdFinalize releases a closed connection once no worker holds it.
	cmdFinalize
)

type command struct {
	kind   commandKind
	fd     int
	gen    uint64
	client *client
}

// post queues cmd for the event loop and wakes it. Safe from any goroutine.
func (s *Server) post(cmd command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.controlClosed {
		return
	}
	s.commands = append(s.commands, cmd)
	if s.waker == nil {
		// Delivered by the first wake once the loop is running.
		return
	}
	if err := s.waker.Wake(); err != nil {
		logger.Error("Failed to wake event loop: %v", err)
	}
}

// loop runs until a shutdown command arrives or epoll fails.
func (s *Server) loop() error {
	// Commands posted before the control channel existed.
	s.mu.Lock()
	pending := len(s.commands) > 0
	s.mu.Unlock()
	if pending {
		_ = s.waker.Wake()
	}

	for {
		events, err := s.poller.Wait(-1)
		if err != nil {
			return fmt.Errorf("epoll wait: %w", err)
		}

		for _, ev := range events {
			switch ev.Fd {
			case s.listenFd:
				s.acceptClients()
			case s.waker.Fd():
				if s.runCommands() {
					return nil
				}
			default:
				s.dispatch(ev)
			}
		}
	}
}

// runCommands executes every queued command and reports whether shutdown
// was requested.
func (s *Server) runCommands() bool {
	if _, err := s.waker.Drain(); err != nil {
		logger.Error("Failed to drain control channel: %v", err)
	}

	s.mu.Lock()
	cmds := s.commands
	s.commands = nil
	s.mu.Unlock()

	stop := false
	for _, cmd := range cmds {
		switch cmd.kind {
		case cmdTick:
			if n := s.timers.Tick(time.Now()); n > 0 {
				logger.Debug("Idle timer closed %d connection(s)", n)
			}
		case cmdShutdown:
			stop = true
		case cmdReap:
			if c := s.lookup(cmd.fd, cmd.gen); c != nil {
				s.closeClient(c)
			}
		case cmdFinalize:
			s.finalize(cmd.client)
		}
	}
	return stop
}

// acceptClients accepts one connection, or all pending ones when the
// listener is edge-triggered, then re-arms the listener.
func (s *Server) acceptClients() {
	defer func() {
		if err := s.poller.Modify(s.listenFd, 0, poller.EventRead, s.listenerFlags()); err != nil {
			logger.Error("Failed to re-arm listener: %v", err)
		}
	}()

	for {
		fd, peer, err := accept(s.listenFd)
		if err != nil {
			if err != unix.EAGAIN {
				logger.Error("Accept failed: %v", err)
			}
			return
		}
		s.admit(fd, peer)

		if !s.cfg.TrigMode.ListenerEdge() {
			return
		}
	}
}

// admit turns an accepted socket into a registered client, or refuses it.
func (s *Server) admit(fd int, peer string) {
	if !s.limiter.Allow() {
		logger.Debug("Accept rate exceeded, dropping %s", peer)
		s.rejected.Add(1)
		s.metrics.RecordConnectionRejected(metrics.RejectRateLimit)
		_ = unix.Close(fd)
		return
	}
	if s.live.Load() >= int64(s.cfg.MaxConnections) {
		logger.Warn("Connection limit %d reached, refusing %s", s.cfg.MaxConnections, peer)
		s.rejected.Add(1)
		s.metrics.RecordConnectionRejected(metrics.RejectBusy)
		refuse(fd, busyMessage)
		return
	}
	if s.cfg.Linger {
		if err := setLinger(fd); err != nil {
			logger.Warn("Failed to set SO_LINGER on %s: %v", peer, err)
		}
	}

	c := &client{fd: fd, conn: httpconn.New(fd, peer, s.connCfg)}

	s.mu.Lock()
	s.nextGen++
	c.gen = s.nextGen
	s.mu.Unlock()

	gen := c.gen
	c.timer = s.timers.Insert(time.Now().Add(s.cfg.IdleTimeout), func() { s.expire(fd, gen) })

	s.mu.Lock()
	s.clients[fd] = c
	s.mu.Unlock()

	if err := s.poller.Add(fd, c.tag(), poller.EventRead, s.connFlags()); err != nil {
		logger.Error("Failed to register %s: %v", peer, err)
		s.mu.Lock()
		delete(s.clients, fd)
		s.mu.Unlock()
		s.timers.Remove(c.timer)
		_ = unix.Close(fd)
		return
	}

	live := s.live.Add(1)
	s.accepted.Add(1)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(int(live))
	logger.Debug("Accepted %s (fd=%d, live=%d)", peer, fd, live)
}

// lookup returns the live client in slot fd if its generation is gen.
func (s *Server) lookup(fd int, gen uint64) *client {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.clients[fd]
	if c == nil || c.gen != gen {
		return nil
	}
	return c
}

// expire is the idle timer callback. It runs on the event loop from Tick.
func (s *Server) expire(fd int, gen uint64) {
	c := s.lookup(fd, gen)
	if c == nil {
		return
	}
	logger.Debug("Closing idle connection %s", c.conn.Peer())
	s.expired.Add(1)
	s.metrics.RecordTimerExpiration()
	s.closeClient(c)
}

// dispatch routes a client event. An event left over in the batch from a
// connection closed earlier in the same batch carries the old tag and is
// dropped, even when a new connection already holds its fd.
func (s *Server) dispatch(ev poller.Event) {
	s.mu.Lock()
	c := s.clients[ev.Fd]
	s.mu.Unlock()
	if c == nil || c.tag() != ev.Tag {
		return
	}

	switch {
	case ev.Closing():
		logger.Debug("Peer %s hung up", c.conn.Peer())
		s.closeClient(c)
	case ev.Events&poller.EventRead != 0:
		s.onReadable(c)
	case ev.Events&poller.EventWrite != 0:
		s.onWritable(c)
	}
}

// closeClient deregisters c and drops its timer. The socket itself is
// closed by finalize once no worker holds c. Only the event loop calls
// closeClient, and only the first call for a client has any effect.
func (s *Server) closeClient(c *client) {
	s.mu.Lock()
	if c.closing {
		s.mu.Unlock()
		return
	}
	c.closing = true
	if s.clients[c.fd] == c {
		delete(s.clients, c.fd)
	}
	busy := c.refs > 0
	if busy {
		s.draining[c] = struct{}{}
	}
	s.mu.Unlock()

	if err := s.poller.Remove(c.fd); err != nil {
		logger.Debug("Failed to deregister fd %d: %v", c.fd, err)
	}
	s.timers.Remove(c.timer)

	live := s.live.Add(-1)
	s.closed.Add(1)
	s.metrics.RecordConnectionClosed()
	s.metrics.SetActiveConnections(int(live))

	if !busy {
		s.finalize(c)
	}
}

// finalize frees c's mapped file and closes its socket, once.
func (s *Server) finalize(c *client) {
	s.mu.Lock()
	if c.finalized {
		s.mu.Unlock()
		return
	}
	c.finalized = true
	delete(s.draining, c)
	s.mu.Unlock()

	c.conn.Release()
	if err := unix.Close(c.fd); err != nil {
		logger.Debug("Failed to close fd %d: %v", c.fd, err)
	}
}
