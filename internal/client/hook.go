package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/logansec/realtime/internal/wire"
)

// Hook maintains one connection to the realtime server and dispatches
// incoming frames to registered handlers.
type Hook struct {
	cfg    Config
	logger *slog.Logger
	dial   Dialer

	mu        sync.Mutex
	state     State
	transport Transport
	attempts  int
	gen       int
	stopped   bool
	handlers  map[string]Handler
	lastMsg   *wire.ServerFrame
}

// NewHook builds a hook. It does not connect; call Connect.
func NewHook(cfg Config, logger *slog.Logger) *Hook {
	cfg.applyDefaults()
	h := &Hook{
		cfg:      cfg,
		logger:   logger,
		state:    StateDisconnected,
		handlers: make(map[string]Handler),
	}
	h.dial = gorillaDialer(cfg)
	return h
}

// Connect dials the server. Calling it while a connection is open or an
// attempt is in flight is a no-op. A failed dial schedules reconnects on
// the configured interval and still returns the dial error.
func (h *Hook) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.state == StateOpen || h.state == StateConnecting {
		h.mu.Unlock()
		return nil
	}
	h.stopped = false
	h.attempts = 0
	h.state = StateConnecting
	h.mu.Unlock()

	return h.connect(ctx)
}

// Disconnect closes the connection and cancels any pending reconnect.
// Idempotent.
func (h *Hook) Disconnect() {
	h.mu.Lock()
	h.stopped = true
	h.state = StateDisconnected
	tr := h.transport
	h.transport = nil
	h.gen++
	h.mu.Unlock()

	if tr != nil {
		if err := tr.Close(); err != nil {
			h.logger.Debug("close after disconnect", "error", err)
		}
	}
}

// State returns the current lifecycle phase.
func (h *Hook) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsConnected reports whether the connection is open.
func (h *Hook) IsConnected() bool {
	return h.State() == StateOpen
}

// LastMessage returns a copy of the most recently received frame, or nil
// if nothing has arrived yet.
func (h *Hook) LastMessage() *wire.ServerFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastMsg == nil {
		return nil
	}
	f := *h.lastMsg
	return &f
}

// Send marshals v and writes it to the server. It reports false when the
// connection is not open or the write fails; it never queues.
func (h *Hook) Send(v any) bool {
	h.mu.Lock()
	if h.state != StateOpen || h.transport == nil {
		h.mu.Unlock()
		return false
	}
	tr := h.transport
	h.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal outbound frame", "error", err)
		return false
	}
	if err := tr.WriteMessage(data); err != nil {
		h.logger.Warn("write failed", "error", err)
		return false
	}
	return true
}

// Subscribe registers handler for updates on id and sends the subscribe
// request. intervalMs of zero lets the server pick its default. Reports
// false, without keeping the handler, when the send fails.
func (h *Hook) Subscribe(id string, kind wire.SubscriptionKind, filters any, intervalMs int64, handler Handler) bool {
	req := wire.SubscribeRequest{ID: id, Type: string(kind), Interval: intervalMs}
	if filters != nil {
		b, err := json.Marshal(filters)
		if err != nil {
			h.logger.Error("marshal subscription filters", "error", err)
			return false
		}
		req.Filters = b
	}
	data, err := json.Marshal(req)
	if err != nil {
		h.logger.Error("marshal subscribe request", "error", err)
		return false
	}

	h.mu.Lock()
	h.handlers[id] = handler
	h.mu.Unlock()

	if !h.Send(wire.Frame{Type: wire.FrameSubscribe, Data: data}) {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
		return false
	}
	return true
}

// Unsubscribe drops the handler for id and tells the server to stop the
// subscription. Unknown ids are a no-op on both ends.
func (h *Hook) Unsubscribe(id string) bool {
	h.mu.Lock()
	delete(h.handlers, id)
	h.mu.Unlock()

	data, err := json.Marshal(id)
	if err != nil {
		return false
	}
	return h.Send(wire.Frame{Type: wire.FrameUnsubscribe, Data: data})
}

// Query sends a one-off query and registers handler for the single
// response frame. It returns the generated correlation id; the handler is
// removed once the response arrives.
func (h *Hook) Query(req wire.QueryRequest, handler Handler) (string, bool) {
	data, err := json.Marshal(req)
	if err != nil {
		h.logger.Error("marshal query request", "error", err)
		return "", false
	}
	id := uuid.New().String()

	h.mu.Lock()
	h.handlers[id] = handler
	h.mu.Unlock()

	if !h.Send(wire.Frame{Type: wire.FrameQuery, ID: id, Data: data}) {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
		return "", false
	}
	return id, true
}

// connect performs one dial. On failure it schedules the next attempt.
func (h *Hook) connect(ctx context.Context) error {
	tr, err := h.dial(ctx, h.cfg.URL)
	if err != nil {
		h.logger.Warn("dial failed", "url", h.cfg.URL, "error", err)
		h.scheduleReconnect()
		return err
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		tr.Close()
		return nil
	}
	h.transport = tr
	h.state = StateOpen
	h.attempts = 0
	h.gen++
	gen := h.gen
	h.mu.Unlock()

	h.logger.Info("connected", "url", h.cfg.URL)
	go h.readLoop(tr, gen)
	return nil
}

// readLoop pumps frames off one connection until it fails. gen guards
// against a stale loop acting on a connection that was since replaced.
func (h *Hook) readLoop(tr Transport, gen int) {
	for {
		data, err := tr.ReadMessage()
		if err != nil {
			h.mu.Lock()
			if h.gen != gen || h.stopped {
				h.mu.Unlock()
				return
			}
			h.state = StateClosed
			h.transport = nil
			h.mu.Unlock()

			h.logger.Warn("connection lost", "error", err)
			h.scheduleReconnect()
			return
		}
		h.handleFrame(data)
	}
}

func (h *Hook) handleFrame(data []byte) {
	var f wire.ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		h.logger.Warn("unparseable frame", "error", err)
		return
	}

	h.mu.Lock()
	cp := f
	h.lastMsg = &cp

	var handler Handler
	switch {
	case f.SubscriptionID != "":
		handler = h.handlers[f.SubscriptionID]
	case f.ID != "":
		handler = h.handlers[f.ID]
		if handler != nil && (f.Type == wire.FrameQueryResult || f.Type == wire.FrameError) {
			delete(h.handlers, f.ID)
		}
	}
	h.mu.Unlock()

	if f.Type == wire.FramePing {
		h.Send(wire.Frame{Type: wire.FramePong})
		return
	}
	if handler != nil {
		handler(f)
	}
}

// scheduleReconnect arms the next attempt, or goes terminal when the
// budget is spent.
func (h *Hook) scheduleReconnect() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if h.attempts >= h.cfg.MaxReconnectAttempts {
		h.state = StateDisconnected
		attempts := h.attempts
		h.mu.Unlock()
		h.logger.Error("reconnect attempts exhausted", "attempts", attempts)
		return
	}
	h.attempts++
	h.state = StateConnecting
	attempt := h.attempts
	h.mu.Unlock()

	h.logger.Info("reconnecting", "attempt", attempt, "wait", h.cfg.ReconnectInterval)
	time.AfterFunc(h.cfg.ReconnectInterval, func() {
		h.mu.Lock()
		if h.stopped || h.state != StateConnecting {
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()
		h.connect(context.Background())
	})
}

func (h *Hook) handlerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}
