package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/logansec/realtime/internal/wire"
)

// conn holds the registry's view of a single client connection.
type conn struct {
	id   string
	sock Socket

	// Subscription ids owned by this connection. Guarded by the
	// registry mutex.
	subs map[string]struct{}

	// Closed when the connection is removed; stops the heartbeat.
	done chan struct{}
}

// Registry owns all live connections. It is the only component that
// touches sockets, so every other component references connections by
// id and a task outliving its connection is a guaranteed no-op.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	// Collaborating services, attached after construction.
	subs    SubscriptionService
	queries QueryService
	tap     chan<- Delivered

	mu    sync.Mutex
	conns map[string]*conn
}

// New creates an empty registry.
func New(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}

	return &Registry{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]*conn),
	}
}

// SetSubscriptions attaches the subscription engine.
func (r *Registry) SetSubscriptions(s SubscriptionService) {
	r.subs = s
}

// SetQueries attaches the ad-hoc query runner.
func (r *Registry) SetQueries(q QueryService) {
	r.queries = q
}

// SetDeliveryTap attaches an optional channel receiving every update
// frame handed to a socket. Sends never block; the tap drops under
// backpressure.
func (r *Registry) SetDeliveryTap(ch chan<- Delivered) {
	r.tap = ch
}

// Accept registers a socket, assigns a fresh connection id, sends the
// connected frame, and starts the heartbeat.
func (r *Registry) Accept(sock Socket) string {
	id := uuid.New().String()
	c := &conn{
		id:   id,
		sock: sock,
		subs: make(map[string]struct{}),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()

	r.Dispatch(id, wire.Connected(id))
	go r.heartbeat(c)

	r.logger.Info("connection accepted", "conn_id", id)
	return id
}

// Dispatch delivers a frame to one connection. Absent or closed
// connections are silently dropped, so callers never check liveness.
// A write failure closes the connection as if the client had left.
func (r *Registry) Dispatch(connID string, frame wire.ServerFrame) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	r.mu.Unlock()
	if !ok {
		return
	}

	data, err := frame.Encode()
	if err != nil {
		r.logger.Error("frame encode failed", "type", frame.Type, "error", err)
		return
	}

	if err := c.sock.WriteMessage(data); err != nil {
		r.logger.Debug("socket write failed, closing connection",
			"conn_id", connID,
			"error", err,
		)
		r.Close(connID)
		return
	}

	r.record(connID, frame)
}

// BroadcastAll delivers a frame to every connection. One recipient's
// failure never aborts delivery to the others.
func (r *Registry) BroadcastAll(frame wire.ServerFrame) {
	for _, id := range r.connIDs() {
		r.Dispatch(id, frame)
	}
}

// BroadcastToSubscription delivers a frame to every connection owning
// the given subscription id.
func (r *Registry) BroadcastToSubscription(subID string, frame wire.ServerFrame) {
	r.mu.Lock()
	ids := make([]string, 0)
	for id, c := range r.conns {
		if _, ok := c.subs[subID]; ok {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Dispatch(id, frame)
	}
}

// Close cancels every subscription owned by the connection, then
// removes it. Safe to call repeatedly and from dispatch paths.
func (r *Registry) Close(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	close(c.done)
	if r.subs != nil {
		r.subs.CancelAll(connID)
	}
	c.sock.Close()

	r.logger.Info("connection closed", "conn_id", connID)
}

// CloseAll tears down every connection, for shutdown.
func (r *Registry) CloseAll() {
	for _, id := range r.connIDs() {
		r.Close(id)
	}
}

// HandleInbound parses one raw frame from a connection and routes it.
// Malformed or unknown frames produce an error reply to the sender
// only; they never affect other connections.
func (r *Registry) HandleInbound(connID string, data []byte) {
	var f wire.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		r.Dispatch(connID, wire.ErrorFrame("", "malformed frame"))
		return
	}

	switch f.Type {
	case wire.FrameSubscribe:
		r.handleSubscribe(connID, f)
	case wire.FrameUnsubscribe:
		r.handleUnsubscribe(connID, f)
	case wire.FrameQuery:
		r.handleQuery(connID, f)
	case wire.FramePing:
		r.Dispatch(connID, wire.Pong())
	case wire.FramePong:
		// Heartbeat answer, nothing to do.
	default:
		r.Dispatch(connID, wire.ErrorFrame(f.ID, fmt.Sprintf("unknown frame type %q", f.Type)))
	}
}

// Stats returns current occupancy.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, c := range r.conns {
		total += len(c.subs)
	}
	return Stats{
		Connections:        len(r.conns),
		TotalSubscriptions: total,
	}
}

func (r *Registry) handleSubscribe(connID string, f wire.Frame) {
	var req wire.SubscribeRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		r.Dispatch(connID, wire.ErrorFrame("", "malformed subscribe payload"))
		return
	}
	if req.ID == "" {
		r.Dispatch(connID, wire.ErrorFrame("", "subscription id is required"))
		return
	}

	kind, err := wire.ParseKind(req.Type)
	if err != nil {
		r.Dispatch(connID, wire.SubscriptionError(req.ID, err.Error()))
		return
	}

	if r.subs == nil {
		r.Dispatch(connID, wire.SubscriptionError(req.ID, "subscriptions unavailable"))
		return
	}

	interval := time.Duration(req.Interval) * time.Millisecond
	if err := r.subs.Subscribe(connID, req.ID, kind, req.Filters, interval); err != nil {
		r.Dispatch(connID, wire.SubscriptionError(req.ID, err.Error()))
		return
	}

	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		// The connection closed while this subscribe was in flight;
		// its CancelAll already ran, so tear the new task down here or
		// it polls forever for a client that is gone.
		r.mu.Unlock()
		r.subs.Unsubscribe(connID, req.ID)
		return
	}
	c.subs[req.ID] = struct{}{}
	r.mu.Unlock()

	r.Dispatch(connID, wire.Subscribed(req.ID))
	r.logger.Debug("subscribed",
		"conn_id", connID,
		"subscription_id", req.ID,
		"kind", kind,
		"interval", interval,
	)
}

func (r *Registry) handleUnsubscribe(connID string, f wire.Frame) {
	var subID string
	if err := json.Unmarshal(f.Data, &subID); err != nil || subID == "" {
		r.Dispatch(connID, wire.ErrorFrame("", "malformed unsubscribe payload"))
		return
	}

	if r.subs != nil {
		r.subs.Unsubscribe(connID, subID)
	}

	r.mu.Lock()
	if c, ok := r.conns[connID]; ok {
		delete(c.subs, subID)
	}
	r.mu.Unlock()

	// Unknown ids are a no-op success.
	r.Dispatch(connID, wire.Unsubscribed(subID))
}

func (r *Registry) handleQuery(connID string, f wire.Frame) {
	if f.ID == "" {
		r.Dispatch(connID, wire.ErrorFrame("", "query id is required"))
		return
	}

	var req wire.QueryRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		r.Dispatch(connID, wire.ErrorFrame(f.ID, "malformed query payload"))
		return
	}
	if req.Query == "" {
		r.Dispatch(connID, wire.ErrorFrame(f.ID, "query is required"))
		return
	}

	if r.queries == nil {
		r.Dispatch(connID, wire.ErrorFrame(f.ID, "queries unavailable"))
		return
	}

	r.queries.Run(connID, f.ID, req)
}

// heartbeat pings the connection on a fixed period until it closes.
// A failed write closes the connection via Dispatch, which closes
// c.done and ends this loop.
func (r *Registry) heartbeat(c *conn) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			r.Dispatch(c.id, wire.Ping())
		}
	}
}

// record feeds delivered update frames to the archive tap, if any.
func (r *Registry) record(connID string, frame wire.ServerFrame) {
	if r.tap == nil || frame.SubscriptionID == "" || len(frame.Data) == 0 {
		return
	}

	select {
	case r.tap <- Delivered{
		ConnectionID:   connID,
		SubscriptionID: frame.SubscriptionID,
		Type:           frame.Type,
		Data:           frame.Data,
		SentAt:         time.Now(),
	}:
	default:
	}
}

func (r *Registry) connIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}
