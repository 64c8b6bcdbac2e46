package client

import (
	"context"
	"time"

	"github.com/logansec/realtime/internal/wire"
)

// State is the lifecycle phase of a Hook's connection.
type State string

const (
	// StateDisconnected means no connection exists and none is being
	// attempted. It is both the initial and the terminal state.
	StateDisconnected State = "disconnected"
	// StateConnecting means a dial or a scheduled reconnect is in flight.
	StateConnecting State = "connecting"
	// StateOpen means the connection is established and usable.
	StateOpen State = "open"
	// StateClosed means the connection dropped and a reconnect decision
	// has not been made yet.
	StateClosed State = "closed"
)

// Transport is a single established connection to the server.
type Transport interface {
	// ReadMessage blocks until the next frame arrives or the
	// connection fails.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one frame. Safe for concurrent use.
	WriteMessage(data []byte) error
	// Close tears the connection down. ReadMessage unblocks with an
	// error afterwards.
	Close() error
}

// Dialer establishes a Transport. The default dials a WebSocket; tests
// substitute in-memory transports.
type Dialer func(ctx context.Context, url string) (Transport, error)

// Handler receives frames routed to a subscription or query.
type Handler func(frame wire.ServerFrame)

// Config controls connection and reconnection behavior.
type Config struct {
	// URL is the ws:// or wss:// endpoint of the realtime server.
	URL string
	// ReconnectInterval is the fixed wait before each reconnect attempt.
	ReconnectInterval time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects before
	// the hook gives up and goes Disconnected.
	MaxReconnectAttempts int
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
}

// DefaultConfig returns the settings used when a field is zero.
func DefaultConfig() Config {
	return Config{
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
}
