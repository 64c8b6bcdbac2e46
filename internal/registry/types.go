package registry

import (
	"encoding/json"
	"time"

	"github.com/logansec/realtime/internal/wire"
)

// Socket is the exclusively-owned outbound channel for one connection.
// Implementations serialize their own writes.
type Socket interface {
	WriteMessage(data []byte) error
	Close() error
}

// SubscriptionService is the slice of the subscription engine the
// registry drives. Implementations never block on socket I/O.
type SubscriptionService interface {
	Subscribe(connID, subID string, kind wire.SubscriptionKind, filter json.RawMessage, interval time.Duration) error
	Unsubscribe(connID, subID string)
	CancelAll(connID string)
}

// QueryService executes an ad-hoc query frame asynchronously and
// dispatches the correlated result itself.
type QueryService interface {
	Run(connID, requestID string, req wire.QueryRequest)
}

// Delivered describes one update frame handed to a socket, for the
// optional archive tap.
type Delivered struct {
	ConnectionID   string
	SubscriptionID string
	Type           string
	Data           json.RawMessage
	SentAt         time.Time
}

// Config configures the Registry.
type Config struct {
	HeartbeatInterval time.Duration // server ping cadence per connection
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
	}
}

// Stats reports registry occupancy.
type Stats struct {
	Connections        int
	TotalSubscriptions int
}
