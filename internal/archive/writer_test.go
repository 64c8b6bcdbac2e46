package archive

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/logansec/realtime/internal/registry"
)

func TestWriter_Transform(t *testing.T) {
	input := make(chan registry.Delivered, 10)
	w := NewWriter(DefaultConfig(), input, nil, nil)

	sentAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	d := registry.Delivered{
		ConnectionID:   "conn-1",
		SubscriptionID: "sub-9",
		Type:           "security_events_update",
		Data:           json.RawMessage(`{"events":[]}`),
		SentAt:         sentAt,
	}

	row := w.transform(d)

	if row.ConnectionID != "conn-1" {
		t.Errorf("ConnectionID = %s, want conn-1", row.ConnectionID)
	}
	if row.SubscriptionID != "sub-9" {
		t.Errorf("SubscriptionID = %s, want sub-9", row.SubscriptionID)
	}
	if row.Kind != "security_events_update" {
		t.Errorf("Kind = %s, want security_events_update", row.Kind)
	}
	if string(row.Payload) != `{"events":[]}` {
		t.Errorf("Payload = %s, want {\"events\":[]}", row.Payload)
	}
	if row.SentAt != sentAt.UnixMicro() {
		t.Errorf("SentAt = %d, want %d", row.SentAt, sentAt.UnixMicro())
	}
}

func TestWriter_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 50 * time.Millisecond,
		BufferSize:    10,
	}
	input := make(chan registry.Delivered, 10)
	w := NewWriter(cfg, input, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// No deliveries arrive; the empty batch never reaches the database.
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stats := w.Stats()
	if stats.Flushes != 0 || stats.Inserts != 0 || stats.Errors != 0 {
		t.Errorf("unexpected activity on empty writer: %+v", stats)
	}
}

func TestWriter_BatchAccumulation(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour, // never fires during the test
		BufferSize:    10,
	}
	input := make(chan registry.Delivered, 10)
	w := NewWriter(cfg, input, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		input <- registry.Delivered{
			ConnectionID:   "conn-1",
			SubscriptionID: "sub-1",
			Type:           "metrics_update",
			Data:           json.RawMessage(`{}`),
			SentAt:         time.Now(),
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		w.batchMu.Lock()
		n := len(w.batch)
		w.batchMu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	w.batchMu.Lock()
	got := len(w.batch)
	w.batchMu.Unlock()
	if got != 3 {
		t.Fatalf("batch length = %d, want 3", got)
	}

	// Drop the batch so Stop's final flush has nothing to write; there
	// is no database behind this writer.
	w.batchMu.Lock()
	w.batch = w.batch[:0]
	w.batchMu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
