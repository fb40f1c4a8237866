package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a connection is refused before it is served.
const (
	RejectBusy      = "busy"
	RejectRateLimit = "rate_limit"
	RejectQueueFull = "queue_full"
)

// HTTPMetrics provides observability for the HTTP server.
//
// The server accepts nil and substitutes a no-op implementation.
type HTTPMetrics interface {
	// RecordRequest records a completed response with its request method,
	// status code and the time since the request line was parsed.
	RecordRequest(method string, status int, duration time.Duration)

	// RecordBytesSent records response bytes written to a socket.
	RecordBytesSent(bytes int)

	// SetActiveConnections updates the live connection count.
	SetActiveConnections(count int)

	RecordConnectionAccepted()
	RecordConnectionClosed()

	// RecordConnectionRejected counts a socket closed right after accept.
	// reason is one of the Reject constants.
	RecordConnectionRejected(reason string)

	// RecordQueueRejection counts a task refused by a full worker queue.
	RecordQueueRejection()

	// RecordTimerExpiration counts a connection closed for being idle.
	RecordTimerExpiration()
}

type httpMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	bytesSent           prometheus.Counter
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	queueRejections     prometheus.Counter
	timerExpirations    prometheus.Counter
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics registered with the
// global registry, or a no-op implementation when metrics are disabled.
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() {
		return NewNoopHTTPMetrics()
	}
	return newHTTPMetrics(GetRegistry())
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyhttpd_http_requests_total",
				Help: "Total number of HTTP responses by method and status code",
			},
			[]string{"method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tinyhttpd_http_request_duration_seconds",
				Help: "Time from request line to response in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
				},
			},
			[]string{"method"},
		),
		bytesSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinyhttpd_http_bytes_sent_total",
				Help: "Total response bytes written",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tinyhttpd_active_connections",
				Help: "Current number of open client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinyhttpd_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinyhttpd_connections_closed_total",
				Help: "Total number of client connections closed",
			},
		),
		connectionsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyhttpd_connections_rejected_total",
				Help: "Total number of connections refused by reason",
			},
			[]string{"reason"},
		),
		queueRejections: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinyhttpd_worker_queue_rejections_total",
				Help: "Total number of tasks refused because the worker queue was full",
			},
		),
		timerExpirations: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinyhttpd_idle_timeouts_total",
				Help: "Total number of connections closed by the idle timer",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordBytesSent(bytes int) {
	m.bytesSent.Add(float64(bytes))
}

func (m *httpMetrics) SetActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *httpMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *httpMetrics) RecordQueueRejection() {
	m.queueRejections.Inc()
}

func (m *httpMetrics) RecordTimerExpiration() {
	m.timerExpirations.Inc()
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordBytesSent(bytes int)                                        {}
func (noopHTTPMetrics) SetActiveConnections(count int)                                   {}
func (noopHTTPMetrics) RecordConnectionAccepted()                                        {}
func (noopHTTPMetrics) RecordConnectionClosed()                                          {}
func (noopHTTPMetrics) RecordConnectionRejected(reason string)                           {}
func (noopHTTPMetrics) RecordQueueRejection()                                            {}
func (noopHTTPMetrics) RecordTimerExpiration()                                           {}
