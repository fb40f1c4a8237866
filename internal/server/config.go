package server

import (
	"fmt"
	"time"

	"github.com/marmos91/tinyhttpd/internal/httpconn"
)

// Model selects who performs socket I/O.
type Model string

const (
	// ModelProactor reads and writes on the event loop; workers only parse
	// and build responses.
	ModelProactor Model = "proactor"
	// ModelReactor hands readiness to workers, which do the I/O themselves.
	ModelReactor Model = "reactor"
)

// TrigMode combines the trigger modes of the listener and of client sockets.
//
//	0: listener LT, connections LT
//	1: listener LT, connections ET
//	2: listener ET, connections LT
//	3: listener ET, connections ET
type TrigMode int

// ListenerEdge reports whether the listener is edge-triggered.
func (m TrigMode) ListenerEdge() bool {
	return m&2 != 0
}

// ConnEdge reports whether client sockets are edge-triggered.
func (m TrigMode) ConnEdge() bool {
	return m&1 != 0
}

func (m TrigMode) String() string {
	mode := func(et bool) string {
		if et {
			return "ET"
		}
		return "LT"
	}
	return fmt.Sprintf("%s+%s", mode(m.ListenerEdge()), mode(m.ConnEdge()))
}

// Config holds the HTTP server settings.
//
// Default values (applied by New if zero):
//   - BindAddress: 0.0.0.0
//   - Backlog: 128
//   - TrigMode: 0
//   - Model: proactor
//   - Workers: 8
//   - QueueCapacity: 10000
//   - MaxConnections: 65536
//   - MaxEvents: 10000
//   - IdleTimeout: 15s
//   - TickInterval: IdleTimeout / 3
//   - ShutdownTimeout: 30s
//
// A zero Port binds an ephemeral port; Port reports the one chosen.
type Config struct {
	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// BindAddress is the IPv4 address to bind.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" validate:"omitempty,ipv4"`

	// Backlog is passed to listen(2).
	Backlog int `mapstructure:"backlog" yaml:"backlog" validate:"min=0"`

	// DocRoot is the directory documents are served from.
	DocRoot string `mapstructure:"doc_root" yaml:"doc_root" validate:"required"`

	TrigMode TrigMode `mapstructure:"trig_mode" yaml:"trig_mode" validate:"min=0,max=3"`

	Model Model `mapstructure:"model" yaml:"model" validate:"omitempty,oneof=proactor reactor"`

	// Workers is the number of worker goroutines.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=0"`

	// QueueCapacity bounds the worker task queue. A dispatch that finds the
	// queue full closes the connection.
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity" validate:"min=0"`

	// MaxConnections caps live client connections. Sockets accepted past
	// the cap are told "Internal server busy" and closed.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// MaxEvents is the epoll_wait batch size.
	MaxEvents int `mapstructure:"max_events" yaml:"max_events" validate:"min=0"`

	// IdleTimeout closes connections without I/O for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// TickInterval is how often expired connections are collected.
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" validate:"min=0"`

	// Linger enables SO_LINGER with a one second timeout on client sockets.
	Linger bool `mapstructure:"linger" yaml:"linger"`

	// AcceptRate limits accepted connections per second; 0 disables.
	AcceptRate uint `mapstructure:"accept_rate" yaml:"accept_rate"`

	// AcceptBurst is the token bucket size for AcceptRate.
	AcceptBurst uint `mapstructure:"accept_burst" yaml:"accept_burst"`

	// ShutdownTimeout bounds how long Serve waits for workers on shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is how often a stats line is logged; 0 disables.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0"
	}
	if c.Backlog == 0 {
		c.Backlog = 128
	}
	if c.Model == "" {
		c.Model = ModelProactor
	}
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 10000
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 65536
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = 10000
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 15 * time.Second
	}
	if c.TickInterval == 0 {
		c.TickInterval = c.IdleTimeout / 3
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.DocRoot == "" {
		return fmt.Errorf("document root is required")
	}
	if c.TrigMode < 0 || c.TrigMode > 3 {
		return fmt.Errorf("invalid trig_mode %d: must be 0-3", c.TrigMode)
	}
	if c.Model != ModelProactor && c.Model != ModelReactor {
		return fmt.Errorf("invalid model %q: must be proactor or reactor", c.Model)
	}
	if c.Workers <= 0 || c.QueueCapacity <= 0 {
		return fmt.Errorf("workers (%d) and queue capacity (%d) must be positive", c.Workers, c.QueueCapacity)
	}
	if c.IdleTimeout <= 0 || c.TickInterval <= 0 {
		return fmt.Errorf("idle timeout %v and tick interval %v must be positive", c.IdleTimeout, c.TickInterval)
	}
	return nil
}

func (c *Config) connConfig() httpconn.Config {
	return httpconn.Config{
		DocRoot:       c.DocRoot,
		EdgeTriggered: c.TrigMode.ConnEdge(),
	}
}
