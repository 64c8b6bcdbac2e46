package collab

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/logansec/realtime/internal/retry"
)

// Errors
var (
	ErrConnectInProgress = errors.New("connection already in progress")
	ErrNotConnected      = errors.New("not connected")
	ErrTimeout           = errors.New("collaborator call timeout")
	ErrSessionClosed     = errors.New("collaborator session closed")
)

// RemoteError is a well-formed error response from the query engine.
// The call itself succeeded, so retrying would only burn the backoff
// budget; callers receive it immediately.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "query engine error: " + e.Message
}

// Config configures a Session.
type Config struct {
	Command        string        // collaborator executable
	Args           []string      // collaborator arguments
	ConnectTimeout time.Duration // per handshake attempt
	CallTimeout    time.Duration // per call attempt
	MaxAttempts    int           // total attempts per connect/call sequence
	Backoff        retry.Policy  // delay between attempts
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		CallTimeout:    30 * time.Second,
		MaxAttempts:    3,
		Backoff:        retry.DefaultPolicy(),
	}
}

// request is one NDJSON line sent to the collaborator.
type request struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params *requestParams `json:"params,omitempty"`
}

// requestParams names a capability and its JSON arguments.
type requestParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// response is one NDJSON line received from the collaborator.
type response struct {
	ID     int64           `json:"id"`
	Status string          `json:"status"` // "success" or "error"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

const (
	methodInitialize = "initialize"
	methodCall       = "tools/call"

	statusSuccess = "success"
	statusError   = "error"
)
