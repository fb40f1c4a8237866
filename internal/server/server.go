//go:build linux

package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/tinyhttpd/internal/httpconn"
	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/internal/poller"
	"github.com/marmos91/tinyhttpd/internal/ratelimiter"
	"github.com/marmos91/tinyhttpd/internal/timer"
	"github.com/marmos91/tinyhttpd/internal/workerpool"
	"github.com/marmos91/tinyhttpd/pkg/credentials"
	"github.com/marmos91/tinyhttpd/pkg/dbpool"
	"github.com/marmos91/tinyhttpd/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// busyMessage is written to sockets accepted past MaxConnections.
const busyMessage = "Internal server busy"

var (
	// ErrServerStarted is returned by a second call to Serve.
	ErrServerStarted = errors.New("server: already started")
)

// client is one live connection slot. gen distinguishes successive
// connections that reuse the same fd.
type client struct {
	fd    int
	gen   uint64
	conn  *httpconn.Conn
	timer *timer.Timer

	// Guarded by Server.mu.
	refs      int
	closing   bool
	finalized bool
}

// tag is the epoll tag of c's registration. Events carrying another tag
// belong to an earlier connection on the same fd.
func (c *client) tag() uint32 {
	return uint32(c.gen)
}

// Server is the epoll HTTP server.
//
// Lifecycle: New, then Serve blocks until ctx is cancelled or Stop is
// called. A Server cannot be restarted.
type Server struct {
	cfg      Config
	index    *credentials.Index
	handles  *dbpool.Pool[*credentials.Conn]
	metrics  metrics.HTTPMetrics
	limiter  *ratelimiter.Limiter
	connCfg  httpconn.Config
	poller   *poller.Poller
	waker    *poller.Waker
	timers   *timer.List
	pool     *workerpool.Pool[task]
	listenFd int
	port     atomic.Int32

	// requestCtx is cancelled when shutdown starts so that workers blocked
	// on a credential handle give up.
	requestCtx    context.Context
	cancelRequest context.CancelFunc

	mu       sync.Mutex
	clients  map[int]*client
	draining map[*client]struct{}
	commands []command
	nextGen  uint64

	// controlClosed is set before the waker is closed; post drops commands
	// from then on.
	controlClosed bool

	started atomic.Bool
	ready   chan struct{}
	quit    chan struct{}
	done    chan struct{}
	helpers errgroup.Group

	live     atomic.Int64
	accepted atomic.Uint64
	closed   atomic.Uint64
	rejected atomic.Uint64
	expired  atomic.Uint64
	requests atomic.Uint64
	sent     atomic.Uint64
}

// New creates a stopped server. index and handles back the login and
// register actions and must be given together; with both nil every login
// fails. A nil m disables metrics.
func New(cfg Config, index *credentials.Index, handles *dbpool.Pool[*credentials.Conn], m metrics.HTTPMetrics) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if (index == nil) != (handles == nil) {
		return nil, errors.New("server: credential index and handle pool must be set together")
	}
	if m == nil {
		m = metrics.NewNoopHTTPMetrics()
	}

	reqCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:           cfg,
		index:         index,
		handles:       handles,
		metrics:       m,
		limiter:       ratelimiter.New(cfg.AcceptRate, cfg.AcceptBurst),
		connCfg:       cfg.connConfig(),
		timers:        timer.New(),
		listenFd:      -1,
		requestCtx:    reqCtx,
		cancelRequest: cancel,
		clients:       make(map[int]*client),
		draining:      make(map[*client]struct{}),
		ready:         make(chan struct{}),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Serve opens the listener and runs the event loop until ctx is cancelled
// or Stop is called, then closes every connection and joins the workers.
func (s *Server) Serve(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerStarted
	}
	defer close(s.done)

	if err := s.open(); err != nil {
		s.closeResources()
		return err
	}

	logger.Info("HTTP server listening on %s:%d (root=%s, trig_mode=%d %s, model=%s, workers=%d)",
		s.cfg.BindAddress, s.Port(), s.cfg.DocRoot, s.cfg.TrigMode, s.cfg.TrigMode, s.cfg.Model, s.cfg.Workers)

	s.helpers.Go(func() error {
		select {
		case <-ctx.Done():
			logger.Info("HTTP server shutdown signal received: %v", ctx.Err())
			s.post(command{kind: cmdShutdown})
		case <-s.quit:
		}
		return nil
	})
	s.helpers.Go(func() error {
		s.runTicker()
		return nil
	})
	if s.cfg.MetricsLogInterval > 0 {
		s.helpers.Go(func() error {
			s.runStatsLog()
			return nil
		})
	}
	close(s.ready)

	err := s.loop()
	close(s.quit)
	s.shutdown()
	_ = s.helpers.Wait()
	return err
}

// open creates the poller, the control channel, the listener and the
// worker pool.
func (s *Server) open() error {
	var err error
	if s.poller, err = poller.New(s.cfg.MaxEvents); err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}
	waker, err := poller.NewWaker()
	if err != nil {
		return fmt.Errorf("failed to create control channel: %w", err)
	}
	s.mu.Lock()
	s.waker = waker
	s.mu.Unlock()

	if err := s.poller.Add(s.waker.Fd(), 0, poller.EventRead, 0); err != nil {
		return fmt.Errorf("failed to register control channel: %w", err)
	}

	fd, port, err := listen(s.cfg.BindAddress, s.cfg.Port, s.cfg.Backlog)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	s.listenFd = fd
	s.port.Store(int32(port))

	if err := s.poller.Add(fd, 0, poller.EventRead, s.listenerFlags()); err != nil {
		return fmt.Errorf("failed to register listener: %w", err)
	}

	if s.pool, err = workerpool.New(s.cfg.Workers, s.cfg.QueueCapacity, s.handle); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	return nil
}

// Stop asks the event loop to shut down and waits for Serve to return or
// ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}
	s.post(command{kind: cmdShutdown})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("server stop: %w", ctx.Err())
	}
}

// Ready is closed once the listener accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the bound TCP port, 0 before Serve has opened the listener.
func (s *Server) Port() int {
	return int(s.port.Load())
}

// shutdown runs on the event-loop goroutine after the loop has exited.
func (s *Server) shutdown() {
	s.cancelRequest()

	s.mu.Lock()
	live := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		live = append(live, c)
	}
	s.mu.Unlock()

	logger.Info("HTTP graceful shutdown: closing %d connection(s)", len(live))
	for _, c := range live {
		s.closeClient(c)
	}

	if s.pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		if err := s.pool.Stop(ctx); err != nil {
			logger.Warn("Worker pool did not drain within %v: %v", s.cfg.ShutdownTimeout, err)
		}
		cancel()
	}

	// Workers are joined: nothing holds a reference any more.
	s.mu.Lock()
	rest := make([]*client, 0, len(s.draining))
	for c := range s.draining {
		rest = append(rest, c)
	}
	s.mu.Unlock()
	for _, c := range rest {
		s.finalize(c)
	}

	s.closeResources()
	logger.Info("HTTP server stopped (accepted=%d closed=%d)", s.accepted.Load(), s.closed.Load())
}

func (s *Server) closeResources() {
	if s.listenFd >= 0 {
		_ = unix.Close(s.listenFd)
		s.listenFd = -1
	}
	if s.poller != nil {
		_ = s.poller.Close()
	}
	s.mu.Lock()
	s.controlClosed = true
	s.mu.Unlock()
	if s.waker != nil {
		_ = s.waker.Close()
	}
}

func (s *Server) listenerFlags() poller.Flags {
	flags := poller.FlagOneShot
	if s.cfg.TrigMode.ListenerEdge() {
		flags |= poller.FlagEdgeTriggered
	}
	return flags
}

func (s *Server) connFlags() poller.Flags {
	flags := poller.FlagOneShot | poller.FlagPeerClose
	if s.cfg.TrigMode.ConnEdge() {
		flags |= poller.FlagEdgeTriggered
	}
	return flags
}

func (s *Server) runTicker() {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.post(command{kind: cmdTick})
		case <-s.quit:
			return
		}
	}
}
