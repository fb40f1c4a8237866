//go:build linux

package server

import (
	"time"

	"github.com/marmos91/tinyhttpd/internal/logger"
)

// Stats is a snapshot of the server counters.
type Stats struct {
	Active    int64
	Accepted  uint64
	Closed    uint64
	Rejected  uint64
	Expired   uint64
	Requests  uint64
	BytesSent uint64

	// Queued is the number of tasks waiting for a worker.
	Queued int

	// FreeHandles is the number of idle credential handles.
	FreeHandles int
}

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	st := Stats{
		Active:    s.live.Load(),
		Accepted:  s.accepted.Load(),
		Closed:    s.closed.Load(),
		Rejected:  s.rejected.Load(),
		Expired:   s.expired.Load(),
		Requests:  s.requests.Load(),
		BytesSent: s.sent.Load(),
	}
	if s.pool != nil {
		st.Queued = s.pool.Len()
	}
	if s.handles != nil {
		st.FreeHandles = s.handles.Free()
	}
	return st
}

func (s *Server) runStatsLog() {
	ticker := time.NewTicker(s.cfg.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st := s.Stats()
			logger.Info("HTTP stats: active=%d accepted=%d closed=%d rejected=%d idle_timeouts=%d requests=%d bytes_sent=%d queued=%d free_handles=%d",
				st.Active, st.Accepted, st.Closed, st.Rejected, st.Expired, st.Requests, st.BytesSent, st.Queued, st.FreeHandles)
		case <-s.quit:
			return
		}
	}
}
