package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/logansec/realtime/internal/wire"
)

// fakeSocket records decoded frames and can be made to fail writes.
type fakeSocket struct {
	mu         sync.Mutex
	frames     []wire.ServerFrame
	failWrites bool
	closed     bool
}

func (s *fakeSocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites {
		return errors.New("broken pipe")
	}

	var f wire.ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) frameTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]string, len(s.frames))
	for i, f := range s.frames {
		types[i] = f.Type
	}
	return types
}

func (s *fakeSocket) lastFrame() (wire.ServerFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return wire.ServerFrame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeSubs records subscription engine calls.
type fakeSubs struct {
	mu           sync.Mutex
	subscribeErr error
	subscribed   []string // "connID/subID/kind"
	unsubscribed []string
	cancelled    []string // connIDs passed to CancelAll
}

func (f *fakeSubs) Subscribe(connID, subID string, kind wire.SubscriptionKind, filter json.RawMessage, interval time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, fmt.Sprintf("%s/%s/%s", connID, subID, kind))
	return nil
}

func (f *fakeSubs) Unsubscribe(connID, subID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, connID+"/"+subID)
}

func (f *fakeSubs) CancelAll(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, connID)
}

func (f *fakeSubs) cancelCount(connID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.cancelled {
		if id == connID {
			n++
		}
	}
	return n
}

// fakeQueries records ad-hoc query dispatches.
type fakeQueries struct {
	mu   sync.Mutex
	runs []string // "connID/requestID/query"
}

func (f *fakeQueries) Run(connID, requestID string, req wire.QueryRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, connID+"/"+requestID+"/"+req.Query)
}

func newTestRegistry() (*Registry, *fakeSubs, *fakeQueries) {
	r := New(Config{HeartbeatInterval: time.Hour}, nil)
	subs := &fakeSubs{}
	queries := &fakeQueries{}
	r.SetSubscriptions(subs)
	r.SetQueries(queries)
	return r, subs, queries
}

func TestRegistry_AcceptSendsConnected(t *testing.T) {
	r, _, _ := newTestRegistry()
	sock := &fakeSocket{}

	id := r.Accept(sock)
	if id == "" {
		t.Fatal("empty connection id")
	}

	f, ok := sock.lastFrame()
	if !ok {
		t.Fatal("no frame sent")
	}
	if f.Type != wire.FrameConnected {
		t.Errorf("Type = %q, want connected", f.Type)
	}
	if f.ConnectionID != id {
		t.Errorf("ConnectionID = %q, want %q", f.ConnectionID, id)
	}
	if f.Timestamp == "" {
		t.Error("timestamp not set")
	}
}

func TestRegistry_DispatchUnknownConnection(t *testing.T) {
	r, _, _ := newTestRegistry()

	// Must be a silent no-op.
	r.Dispatch("no-such-conn", wire.Ping())
}

func TestRegistry_WriteFailureClosesConnection(t *testing.T) {
	r, subs, _ := newTestRegistry()
	sock := &fakeSocket{}
	id := r.Accept(sock)

	sock.mu.Lock()
	sock.failWrites = true
	sock.mu.Unlock()

	r.Dispatch(id, wire.Ping())

	if got := r.Stats().Connections; got != 0 {
		t.Errorf("Connections = %d, want 0", got)
	}
	if !sock.isClosed() {
		t.Error("socket not closed")
	}
	if subs.cancelCount(id) != 1 {
		t.Errorf("CancelAll count = %d, want 1", subs.cancelCount(id))
	}
}

func TestRegistry_BroadcastAllToleratesFailure(t *testing.T) {
	r, _, _ := newTestRegistry()

	good1 := &fakeSocket{}
	bad := &fakeSocket{}
	good2 := &fakeSocket{}
	r.Accept(good1)
	badID := r.Accept(bad)
	r.Accept(good2)

	bad.mu.Lock()
	bad.failWrites = true
	bad.mu.Unlock()

	r.BroadcastAll(wire.Ping())

	for i, sock := range []*fakeSocket{good1, good2} {
		types := sock.frameTypes()
		if len(types) == 0 || types[len(types)-1] != wire.FramePing {
			t.Errorf("socket %d did not receive broadcast: %v", i, types)
		}
	}

	// The failing recipient is cleaned up, the rest stay registered.
	if got := r.Stats().Connections; got != 2 {
		t.Errorf("Connections = %d, want 2", got)
	}
	_ = badID
}

func TestRegistry_CloseIdempotent(t *testing.T) {
	r, subs, _ := newTestRegistry()
	id := r.Accept(&fakeSocket{})

	r.Close(id)
	r.Close(id)

	if got := subs.cancelCount(id); got != 1 {
		t.Errorf("CancelAll count = %d, want 1 (close must not double-cancel)", got)
	}
}

func TestRegistry_MalformedFrameErrorToSenderOnly(t *testing.T) {
	r, _, _ := newTestRegistry()
	sender := &fakeSocket{}
	other := &fakeSocket{}
	senderID := r.Accept(sender)
	r.Accept(other)

	r.HandleInbound(senderID, []byte(`{not json`))

	f, ok := sender.lastFrame()
	if !ok || f.Type != wire.FrameError {
		t.Fatalf("sender frame = %+v, want error frame", f)
	}
	if f.Error == "" {
		t.Error("error message empty")
	}

	for _, of := range other.frameTypes() {
		if of == wire.FrameError {
			t.Error("error frame leaked to another connection")
		}
	}

	// The sender's connection stays open.
	if got := r.Stats().Connections; got != 2 {
		t.Errorf("Connections = %d, want 2", got)
	}
}

func TestRegistry_PingPong(t *testing.T) {
	r, _, _ := newTestRegistry()
	sock := &fakeSocket{}
	id := r.Accept(sock)

	r.HandleInbound(id, []byte(`{"type":"ping"}`))

	f, _ := sock.lastFrame()
	if f.Type != wire.FramePong {
		t.Errorf("Type = %q, want pong", f.Type)
	}
}

func TestRegistry_SubscribeFlow(t *testing.T) {
	r, subs, _ := newTestRegistry()
	sock := &fakeSocket{}
	id := r.Accept(sock)

	frame := []byte(`{"type":"subscribe","data":{"id":"s1","type":"health_status","interval":10000}}`)
	r.HandleInbound(id, frame)

	subs.mu.Lock()
	got := append([]string(nil), subs.subscribed...)
	subs.mu.Unlock()

	want := id + "/s1/health_status"
	if len(got) != 1 || got[0] != want {
		t.Errorf("subscribed = %v, want [%s]", got, want)
	}

	f, _ := sock.lastFrame()
	if f.Type != wire.FrameSubscribed || f.SubscriptionID != "s1" {
		t.Errorf("ack = %+v, want subscribed s1", f)
	}
}

func TestRegistry_SubscribeAfterCloseTearsDownTask(t *testing.T) {
	r, subs, _ := newTestRegistry()
	sock := &fakeSocket{}
	id := r.Accept(sock)

	r.Close(id)

	// A frame the read pump decoded just before the close still lands.
	frame := []byte(`{"type":"subscribe","data":{"id":"s1","type":"metrics"}}`)
	r.HandleInbound(id, frame)

	subs.mu.Lock()
	unsubs := append([]string(nil), subs.unsubscribed...)
	subs.mu.Unlock()

	want := id + "/s1"
	if len(unsubs) != 1 || unsubs[0] != want {
		t.Fatalf("unsubscribed = %v, want [%s]; task would outlive the connection", unsubs, want)
	}

	for _, typ := range sock.frameTypes() {
		if typ == wire.FrameSubscribed {
			t.Error("subscribed ack sent for a closed connection")
		}
	}
}

func TestRegistry_SubscribeUnknownKind(t *testing.T) {
	r, subs, _ := newTestRegistry()
	sock := &fakeSocket{}
	id := r.Accept(sock)

	frame := []byte(`{"type":"subscribe","data":{"id":"s1","type":"orderbook"}}`)
	r.HandleInbound(id, frame)

	subs.mu.Lock()
	n := len(subs.subscribed)
	subs.mu.Unlock()
	if n != 0 {
		t.Error("engine called for unknown kind")
	}

	f, _ := sock.lastFrame()
	if f.Type != wire.FrameSubscriptionError || f.SubscriptionID != "s1" {
		t.Errorf("reply = %+v, want subscription_error s1", f)
	}
}

func TestRegistry_SubscribeDuplicateRejected(t *testing.T) {
	r, subs, _ := newTestRegistry()
	sock := &fakeSocket{}
	id := r.Accept(sock)

	subs.subscribeErr = errors.New(`subscription "s1" already exists`)

	frame := []byte(`{"type":"subscribe","data":{"id":"s1","type":"metrics"}}`)
	r.HandleInbound(id, frame)

	f, _ := sock.lastFrame()
	if f.Type != wire.FrameSubscriptionError {
		t.Errorf("reply type = %q, want subscription_error", f.Type)
	}
}

func TestRegistry_UnsubscribeUnknownIsNoOpSuccess(t *testing.T) {
	r, _, _ := newTestRegistry()
	sock := &fakeSocket{}
	id := r.Accept(sock)

	r.HandleInbound(id, []byte(`{"type":"unsubscribe","data":"never-subscribed"}`))

	f, _ := sock.lastFrame()
	if f.Type != wire.FrameUnsubscribed || f.SubscriptionID != "never-subscribed" {
		t.Errorf("reply = %+v, want unsubscribed", f)
	}
}

func TestRegistry_QueryRouted(t *testing.T) {
	r, _, queries := newTestRegistry()
	sock := &fakeSocket{}
	id := r.Accept(sock)

	frame := []byte(`{"type":"query","id":"q-7","data":{"query":"'Log Source' = 'VCN Flow Logs' | stats count"}}`)
	r.HandleInbound(id, frame)

	queries.mu.Lock()
	got := append([]string(nil), queries.runs...)
	queries.mu.Unlock()

	if len(got) != 1 {
		t.Fatalf("runs = %v, want 1 entry", got)
	}
	want := id + "/q-7/'Log Source' = 'VCN Flow Logs' | stats count"
	if got[0] != want {
		t.Errorf("run = %q, want %q", got[0], want)
	}
}

func TestRegistry_QueryMissingID(t *testing.T) {
	r, _, queries := newTestRegistry()
	sock := &fakeSocket{}
	id := r.Accept(sock)

	r.HandleInbound(id, []byte(`{"type":"query","data":{"query":"x"}}`))

	queries.mu.Lock()
	n := len(queries.runs)
	queries.mu.Unlock()
	if n != 0 {
		t.Error("query without id reached the runner")
	}

	f, _ := sock.lastFrame()
	if f.Type != wire.FrameError {
		t.Errorf("reply type = %q, want error", f.Type)
	}
}

func TestRegistry_BroadcastToSubscription(t *testing.T) {
	r, _, _ := newTestRegistry()
	subscribed := &fakeSocket{}
	bystander := &fakeSocket{}
	subID := r.Accept(subscribed)
	r.Accept(bystander)

	r.HandleInbound(subID, []byte(`{"type":"subscribe","data":{"id":"feed","type":"security_events"}}`))

	update := wire.Update(wire.KindSecurityEvents, "feed", json.RawMessage(`{"count":3}`))
	r.BroadcastToSubscription("feed", update)

	f, _ := subscribed.lastFrame()
	if f.Type != "security_events_update" {
		t.Errorf("subscriber frame = %q, want security_events_update", f.Type)
	}
	for _, ft := range bystander.frameTypes() {
		if ft == "security_events_update" {
			t.Error("update leaked to non-subscriber")
		}
	}
}

func TestRegistry_HeartbeatPings(t *testing.T) {
	r, _, _ := newTestRegistry()
	r.cfg.HeartbeatInterval = 20 * time.Millisecond
	sock := &fakeSocket{}
	id := r.Accept(sock)

	time.Sleep(70 * time.Millisecond)

	pings := 0
	for _, ft := range sock.frameTypes() {
		if ft == wire.FramePing {
			pings++
		}
	}
	if pings == 0 {
		t.Error("no heartbeat pings sent")
	}

	// After close the heartbeat stops.
	r.Close(id)
	before := len(sock.frameTypes())
	time.Sleep(50 * time.Millisecond)
	if after := len(sock.frameTypes()); after != before {
		t.Errorf("frames after close: %d -> %d, want no change", before, after)
	}
}

func TestRegistry_DeliveryTap(t *testing.T) {
	r, _, _ := newTestRegistry()
	tap := make(chan Delivered, 1)
	r.SetDeliveryTap(tap)

	sock := &fakeSocket{}
	id := r.Accept(sock)

	r.Dispatch(id, wire.Update(wire.KindMetrics, "m1", json.RawMessage(`{"cpu":12}`)))

	select {
	case d := <-tap:
		if d.ConnectionID != id || d.SubscriptionID != "m1" || d.Type != "metrics_update" {
			t.Errorf("delivered = %+v", d)
		}
	default:
		t.Fatal("no delivery recorded")
	}

	// Non-update frames are not recorded, and a full tap never blocks.
	r.Dispatch(id, wire.Ping())
	r.Dispatch(id, wire.Update(wire.KindMetrics, "m1", json.RawMessage(`{"cpu":13}`)))
	r.Dispatch(id, wire.Update(wire.KindMetrics, "m1", json.RawMessage(`{"cpu":14}`)))
}
