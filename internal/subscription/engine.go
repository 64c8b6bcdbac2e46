package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/logansec/realtime/internal/wire"
)

// Dispatcher delivers frames to a connection by id. The engine never
// holds a socket handle, so a task outliving its connection is a no-op.
type Dispatcher interface {
	Dispatch(connID string, frame wire.ServerFrame)
}

// Fetcher produces one poll result for a subscription kind.
type Fetcher interface {
	Fetch(ctx context.Context, filter json.RawMessage) (json.RawMessage, error)
}

// FetcherFunc is a function adapter for Fetcher.
type FetcherFunc func(ctx context.Context, filter json.RawMessage) (json.RawMessage, error)

func (f FetcherFunc) Fetch(ctx context.Context, filter json.RawMessage) (json.RawMessage, error) {
	return f(ctx, filter)
}

// Config holds engine configuration.
type Config struct {
	DefaultInterval time.Duration // applied when subscribe omits an interval
	MinInterval     time.Duration // floor for client-supplied intervals
	PollTimeout     time.Duration // per-poll deadline
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultInterval: 30 * time.Second,
		MinInterval:     1 * time.Second,
		PollTimeout:     60 * time.Second,
	}
}

// taskKey scopes a subscription id to its connection.
type taskKey struct {
	connID string
	subID  string
}

// task is one periodic poll with its cancel handle.
type task struct {
	key      taskKey
	kind     wire.SubscriptionKind
	filter   json.RawMessage
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// At-most-one-in-flight guard.
	inFlight atomic.Bool
	skipped  atomic.Int64
}

// Engine owns all periodic subscription tasks.
type Engine struct {
	cfg      Config
	dispatch Dispatcher
	fetchers map[wire.SubscriptionKind]Fetcher
	logger   *slog.Logger

	mu    sync.Mutex
	tasks map[taskKey]*task
}

// NewEngine creates an engine delivering through the given dispatcher.
func NewEngine(cfg Config, dispatch Dispatcher, fetchers map[wire.SubscriptionKind]Fetcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = def.DefaultInterval
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}

	return &Engine{
		cfg:      cfg,
		dispatch: dispatch,
		fetchers: fetchers,
		logger:   logger,
		tasks:    make(map[taskKey]*task),
	}
}

// Subscribe starts a periodic poll task. The subscription id must be
// unique within its connection; a zero interval takes the default.
func (e *Engine) Subscribe(connID, subID string, kind wire.SubscriptionKind, filter json.RawMessage, interval time.Duration) error {
	fetcher, ok := e.fetchers[kind]
	if !ok {
		return fmt.Errorf("unknown subscription kind %q", kind)
	}

	if interval <= 0 {
		interval = e.cfg.DefaultInterval
	}
	if interval < e.cfg.MinInterval {
		interval = e.cfg.MinInterval
	}

	key := taskKey{connID: connID, subID: subID}

	e.mu.Lock()
	if _, exists := e.tasks[key]; exists {
		e.mu.Unlock()
		return fmt.Errorf("subscription %q already exists", subID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		key:      key,
		kind:     kind,
		filter:   filter,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
	e.tasks[key] = t
	e.mu.Unlock()

	go e.run(t, fetcher)

	e.logger.Debug("subscription started",
		"conn_id", connID,
		"subscription_id", subID,
		"kind", kind,
		"interval", interval,
	)
	return nil
}

// Unsubscribe cancels the task and removes bookkeeping. Unknown ids
// are a no-op, so calling it twice succeeds both times. An in-flight
// poll finishes and has its result dropped.
func (e *Engine) Unsubscribe(connID, subID string) {
	key := taskKey{connID: connID, subID: subID}

	e.mu.Lock()
	t, ok := e.tasks[key]
	if ok {
		delete(e.tasks, key)
	}
	e.mu.Unlock()

	if !ok {
		return
	}

	t.cancel()
	e.logger.Debug("subscription cancelled",
		"conn_id", connID,
		"subscription_id", subID,
	)
}

// CancelAll tears down every task owned by a connection.
func (e *Engine) CancelAll(connID string) {
	e.mu.Lock()
	var cancelled []*task
	for key, t := range e.tasks {
		if key.connID == connID {
			delete(e.tasks, key)
			cancelled = append(cancelled, t)
		}
	}
	e.mu.Unlock()

	for _, t := range cancelled {
		t.cancel()
	}

	if len(cancelled) > 0 {
		e.logger.Debug("subscriptions cancelled for connection",
			"conn_id", connID,
			"count", len(cancelled),
		)
	}
}

// Count returns the number of live tasks for a connection.
func (e *Engine) Count(connID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for key := range e.tasks {
		if key.connID == connID {
			n++
		}
	}
	return n
}

// Total returns the number of live tasks across all connections.
func (e *Engine) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// run is the periodic task loop. A tick that arrives while a poll is
// still in flight is skipped, not queued.
func (e *Engine) run(t *task, fetcher Fetcher) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if !t.inFlight.CompareAndSwap(false, true) {
				t.skipped.Add(1)
				continue
			}
			go func() {
				defer t.inFlight.Store(false)
				e.poll(t, fetcher)
			}()
		}
	}
}

// poll runs one fetch and dispatches the outcome. The fetch is not
// cancelled by unsubscribe; it runs to completion and the result is
// dropped if bookkeeping is gone. A failed poll never stops the timer.
func (e *Engine) poll(t *task, fetcher Fetcher) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PollTimeout)
	defer cancel()

	data, err := fetcher.Fetch(ctx, t.filter)

	if !e.alive(t.key) {
		return
	}

	if err != nil {
		e.logger.Debug("poll failed",
			"conn_id", t.key.connID,
			"subscription_id", t.key.subID,
			"kind", t.kind,
			"error", err,
		)
		e.dispatch.Dispatch(t.key.connID, wire.SubscriptionError(t.key.subID, err.Error()))
		return
	}

	e.dispatch.Dispatch(t.key.connID, wire.Update(t.kind, t.key.subID, data))
}

func (e *Engine) alive(key taskKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tasks[key]
	return ok
}
