package wire

import (
	"encoding/json"
	"time"
)

// Inbound frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameQuery       = "query"
	FramePing        = "ping"
)

// Outbound frame types with no kind prefix.
const (
	FrameConnected         = "connected"
	FrameSubscribed        = "subscribed"
	FrameUnsubscribed      = "unsubscribed"
	FrameSubscriptionError = "subscription_error"
	FrameQueryResult       = "query_result"
	FrameError             = "error"
	FramePong              = "pong"
)

// Frame is an inbound client frame before payload decoding.
type Frame struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscribeRequest is the payload of a "subscribe" frame.
type SubscribeRequest struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Filters  json.RawMessage `json:"filters,omitempty"`
	Interval int64           `json:"interval,omitempty"` // milliseconds
}

// QueryRequest is the payload of a "query" frame.
type QueryRequest struct {
	Query             string `json:"query"`
	TimePeriodMinutes int    `json:"timePeriodMinutes,omitempty"`
	CompartmentID     string `json:"compartmentId,omitempty"`
}

// ServerFrame is an outbound frame to a client. Unused fields are
// omitted so each frame type carries only its own shape.
type ServerFrame struct {
	Type           string          `json:"type"`
	ID             string          `json:"id,omitempty"`
	ConnectionID   string          `json:"connectionId,omitempty"`
	SubscriptionID string          `json:"subscriptionId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      string          `json:"timestamp"`
}

// Encode marshals the frame for socket delivery.
func (f ServerFrame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Connected is the first frame sent after accept.
func Connected(connectionID string) ServerFrame {
	return ServerFrame{
		Type:         FrameConnected,
		ConnectionID: connectionID,
		Timestamp:    timestamp(),
	}
}

// Subscribed acknowledges a subscribe frame.
func Subscribed(subscriptionID string) ServerFrame {
	return ServerFrame{
		Type:           FrameSubscribed,
		SubscriptionID: subscriptionID,
		Timestamp:      timestamp(),
	}
}

// Unsubscribed acknowledges an unsubscribe frame.
func Unsubscribed(subscriptionID string) ServerFrame {
	return ServerFrame{
		Type:           FrameUnsubscribed,
		SubscriptionID: subscriptionID,
		Timestamp:      timestamp(),
	}
}

// Update carries one successful poll result, typed "<kind>_update".
func Update(kind SubscriptionKind, subscriptionID string, data json.RawMessage) ServerFrame {
	return ServerFrame{
		Type:           kind.UpdateType(),
		SubscriptionID: subscriptionID,
		Data:           data,
		Timestamp:      timestamp(),
	}
}

// SubscriptionError reports a failed poll. The subscription's timer
// keeps running after this frame.
func SubscriptionError(subscriptionID, message string) ServerFrame {
	return ServerFrame{
		Type:           FrameSubscriptionError,
		SubscriptionID: subscriptionID,
		Error:          message,
		Timestamp:      timestamp(),
	}
}

// QueryResult carries the result of an ad-hoc query, correlated by id.
func QueryResult(id string, data json.RawMessage) ServerFrame {
	return ServerFrame{
		Type:      FrameQueryResult,
		ID:        id,
		Data:      data,
		Timestamp: timestamp(),
	}
}

// ErrorFrame reports a failed query or a malformed inbound frame.
// The id is empty when the offending frame carried none.
func ErrorFrame(id, message string) ServerFrame {
	return ServerFrame{
		Type:      FrameError,
		ID:        id,
		Error:     message,
		Timestamp: timestamp(),
	}
}

// Ping is the server-side heartbeat frame.
func Ping() ServerFrame {
	return ServerFrame{Type: FramePing, Timestamp: timestamp()}
}

// Pong answers a client ping.
func Pong() ServerFrame {
	return ServerFrame{Type: FramePong, Timestamp: timestamp()}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
