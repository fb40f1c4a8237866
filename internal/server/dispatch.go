//go:build linux

package server

import (
	"errors"
	"time"

	"github.com/marmos91/tinyhttpd/internal/httpconn"
	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/internal/poller"
	"github.com/marmos91/tinyhttpd/internal/workerpool"
	"github.com/marmos91/tinyhttpd/pkg/metrics"
)

type op int

const (
	// opRead and opWrite carry readiness to a reactor worker.
	opRead op = iota
	opWrite
	// opProcess asks a proactor worker to parse what the loop has read.
	opProcess
)

type task struct {
	c  *client
	op op
}

func (s *Server) onReadable(c *client) {
	if s.cfg.Model == ModelReactor {
		s.submit(c, opRead)
		return
	}

	n, err := c.conn.Read()
	if err != nil {
		s.logIOError(c, "read", err)
		s.closeClient(c)
		return
	}
	if n > 0 {
		s.touch(c)
	}
	s.submit(c, opProcess)
}

func (s *Server) onWritable(c *client) {
	if s.cfg.Model == ModelReactor {
		s.submit(c, opWrite)
		return
	}
	s.next(c, s.write(c), false)
}

// submit hands c to the worker pool. A full queue drops the connection.
func (s *Server) submit(c *client, o op) {
	s.mu.Lock()
	c.refs++
	s.mu.Unlock()

	err := s.pool.Submit(task{c: c, op: o})
	if err == nil {
		return
	}

	s.mu.Lock()
	c.refs--
	s.mu.Unlock()

	if errors.Is(err, workerpool.ErrQueueFull) {
		logger.Warn("Worker queue full, dropping %s", c.conn.Peer())
		s.rejected.Add(1)
		s.metrics.RecordQueueRejection()
		s.metrics.RecordConnectionRejected(metrics.RejectQueueFull)
	}
	s.closeClient(c)
}

// handle runs on a worker goroutine. Re-arming the socket is the last
// thing it does with the connection.
func (s *Server) handle(t task) {
	defer s.release(t.c)

	switch t.op {
	case opRead:
		n, err := t.c.conn.Read()
		if err != nil {
			s.logIOError(t.c, "read", err)
			s.next(t.c, httpconn.ActionClose, true)
			return
		}
		if n > 0 {
			s.touch(t.c)
		}
		s.next(t.c, s.process(t.c), true)
	case opWrite:
		s.next(t.c, s.write(t.c), true)
	case opProcess:
		s.next(t.c, s.process(t.c), true)
	}
}

// release drops a worker's reference. The last reference to a closed
// client hands it back to the loop for finalization.
func (s *Server) release(c *client) {
	s.mu.Lock()
	c.refs--
	last := c.closing && c.refs == 0
	s.mu.Unlock()

	if last {
		s.post(command{kind: cmdFinalize, client: c})
	}
}

// process parses buffered input with a credential handle borrowed for the
// duration of the call.
func (s *Server) process(c *client) httpconn.Action {
	if s.handles == nil {
		return c.conn.Process(s.requestCtx, nil)
	}

	h, err := s.handles.Acquire(s.requestCtx)
	if err != nil {
		logger.Warn("No credential handle for %s: %v", c.conn.Peer(), err)
		return c.conn.Process(s.requestCtx, nil)
	}
	defer s.handles.Release(h)

	return c.conn.Process(s.requestCtx, s.index.Session(h))
}

// write sends pending response bytes and records the request once the
// response is complete.
func (s *Server) write(c *client) httpconn.Action {
	conn := c.conn
	req := conn.Request()
	method, path := "-", "-"
	if req.Target != "" {
		method, path = req.Method.String(), req.Target
		if conn.Path() != "" {
			path = conn.Path()
		}
	}
	status, elapsed := conn.Status(), conn.Elapsed()

	n, act := conn.Write()
	if n > 0 {
		s.touch(c)
		s.sent.Add(uint64(n))
		s.metrics.RecordBytesSent(n)
	}

	if act != httpconn.ActionWrite && status != 0 && conn.Pending() == 0 {
		s.requests.Add(1)
		s.metrics.RecordRequest(method, status, elapsed)
		logger.Access(method, path, status, elapsed)
	}
	return act
}

// next applies the action a handler returned. Workers request a close
// through the control channel; the loop closes directly.
func (s *Server) next(c *client, act httpconn.Action, fromWorker bool) {
	var events poller.Events
	switch act {
	case httpconn.ActionRead:
		events = poller.EventRead
	case httpconn.ActionWrite:
		events = poller.EventWrite
	default:
		s.requestClose(c, fromWorker)
		return
	}

	if err := s.poller.Modify(c.fd, c.tag(), events, s.connFlags()); err != nil {
		s.mu.Lock()
		closing := c.closing
		s.mu.Unlock()
		if !closing {
			logger.Warn("Failed to re-arm %s: %v", c.conn.Peer(), err)
			s.requestClose(c, fromWorker)
		}
	}
}

func (s *Server) requestClose(c *client, fromWorker bool) {
	if fromWorker {
		s.post(command{kind: cmdReap, fd: c.fd, gen: c.gen})
		return
	}
	s.closeClient(c)
}

// touch pushes c's idle deadline forward.
func (s *Server) touch(c *client) {
	s.timers.Adjust(c.timer, time.Now().Add(s.cfg.IdleTimeout))
}

func (s *Server) logIOError(c *client, op string, err error) {
	if errors.Is(err, httpconn.ErrPeerClosed) {
		logger.Debug("Peer %s closed the connection", c.conn.Peer())
		return
	}
	logger.Warn("Socket %s failed for %s: %v", op, c.conn.Peer(), err)
}
