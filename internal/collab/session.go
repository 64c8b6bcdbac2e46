package collab

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// starter launches the collaborator and returns its stdio plus a stop
// function that terminates and reaps it. Tests substitute in-memory pipes.
type starter func() (stdin io.WriteCloser, stdout io.ReadCloser, stop func(), err error)

// Session is the single logical channel to the external query engine.
// It is lazily connected: the first Call spawns the child process.
type Session struct {
	cfg    Config
	logger *slog.Logger
	start  starter

	mu         sync.Mutex
	connecting bool
	proc       *process

	reqID atomic.Int64
}

// NewSession creates a disconnected session.
func NewSession(cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
	}
	s.start = s.execStart
	return s
}

// Connect attaches the child process and performs the handshake.
// It fails immediately if another connect is underway. Each attempt is
// a fresh process spawn and handshake; after the attempt budget is
// exhausted the session stays disconnected for the next caller.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.proc != nil && s.proc.alive() {
		s.mu.Unlock()
		return nil
	}
	if s.connecting {
		s.mu.Unlock()
		return ErrConnectInProgress
	}
	s.connecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := s.cfg.Backoff.Delay(attempt - 1)
			s.logger.Debug("retrying collaborator connect",
				"attempt", attempt,
				"wait", wait,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		p, err := s.dial(ctx)
		if err != nil {
			lastErr = err
			s.logger.Warn("collaborator connect attempt failed",
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		s.mu.Lock()
		s.proc = p
		s.mu.Unlock()

		s.logger.Info("collaborator connected", "command", s.cfg.Command)
		return nil
	}

	return fmt.Errorf("connection error: %w", lastErr)
}

// Call invokes a named capability on the query engine, connecting
// first if needed. Transport-level failures are retried with backoff;
// a RemoteError is surfaced immediately. A single attempt budget covers
// connect and call failures alike.
func (s *Session) Call(ctx context.Context, name string, args any) (json.RawMessage, error) {
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		raw = b
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := s.cfg.Backoff.Delay(attempt - 1)
			s.logger.Debug("retrying collaborator call",
				"capability", name,
				"attempt", attempt,
				"wait", wait,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		p, err := s.current(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		data, err := s.roundTrip(callCtx, p, methodCall, name, raw)
		cancel()

		if err == nil {
			return data, nil
		}

		var remote *RemoteError
		if errors.As(err, &remote) {
			return nil, err
		}

		lastErr = err
		s.drop(p)
	}

	return nil, fmt.Errorf("call %s: %w", name, lastErr)
}

// IsConnected reports whether the child process is attached and alive.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil && s.proc.alive()
}

// Close terminates the child process, if any.
func (s *Session) Close() {
	s.mu.Lock()
	p := s.proc
	s.proc = nil
	s.mu.Unlock()

	if p != nil {
		p.close()
	}
}

// current returns a live process, connecting if necessary. The lazy
// connect is a single spawn attempt: Call's own retry loop supplies the
// backoff and budget, so a dead collaborator costs one spawn per call
// attempt rather than a nested Connect loop.
func (s *Session) current(ctx context.Context) (*process, error) {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()

	if p != nil && p.alive() {
		return p, nil
	}

	if err := s.connectOnce(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	p = s.proc
	s.mu.Unlock()

	if p == nil || !p.alive() {
		return nil, ErrNotConnected
	}
	return p, nil
}

// connectOnce performs one spawn and handshake under the same
// connect-in-progress guard as Connect.
func (s *Session) connectOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.proc != nil && s.proc.alive() {
		s.mu.Unlock()
		return nil
	}
	if s.connecting {
		s.mu.Unlock()
		return ErrConnectInProgress
	}
	s.connecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	p, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()

	s.logger.Info("collaborator connected", "command", s.cfg.Command)
	return nil
}

// drop discards a dead process so the next attempt respawns.
func (s *Session) drop(p *process) {
	p.close()

	s.mu.Lock()
	if s.proc == p {
		s.proc = nil
	}
	s.mu.Unlock()
}

// dial spawns the process and performs the handshake.
func (s *Session) dial(ctx context.Context) (*process, error) {
	stdin, stdout, stop, err := s.start()
	if err != nil {
		return nil, fmt.Errorf("spawn collaborator: %w", err)
	}

	p := &process{
		stdin:   stdin,
		stop:    stop,
		pending: make(map[int64]chan response),
		done:    make(chan struct{}),
	}
	go p.readLoop(stdout, s.logger)

	hctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	if _, err := s.roundTrip(hctx, p, methodInitialize, "", nil); err != nil {
		p.close()
		return nil, fmt.Errorf("handshake: %w", err)
	}

	return p, nil
}

// roundTrip sends one request and waits for its correlated response.
func (s *Session) roundTrip(ctx context.Context, p *process, method, name string, args json.RawMessage) (json.RawMessage, error) {
	id := s.reqID.Add(1)

	req := request{ID: id, Method: method}
	if name != "" {
		req.Params = &requestParams{Name: name, Arguments: args}
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ch := make(chan response, 1)
	p.register(id, ch)
	defer p.deregister(id)

	if err := p.write(line); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrSessionClosed
	case resp := <-ch:
		if resp.Status == statusError {
			return nil, &RemoteError{Message: resp.Error}
		}
		return resp.Data, nil
	}
}

// execStart launches the configured collaborator executable.
func (s *Session) execStart() (io.WriteCloser, io.ReadCloser, func(), error) {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}

	// Drain stderr so the child never blocks on it.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			s.logger.Warn("collaborator stderr", "line", scanner.Text())
		}
	}()

	stop := func() {
		stdin.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
	}

	return stdin, stdout, stop, nil
}

// process is one spawned collaborator instance with its reader goroutine.
type process struct {
	stdin io.WriteCloser
	stop  func()

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan response

	closeOnce sync.Once
	done      chan struct{}
}

func (p *process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *process) register(id int64, ch chan response) {
	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()
}

func (p *process) deregister(id int64) {
	p.pendingMu.Lock()
	delete(p.pending, id)
	p.pendingMu.Unlock()
}

func (p *process) write(line []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if !p.alive() {
		return ErrSessionClosed
	}

	if _, err := p.stdin.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

func (p *process) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.stop != nil {
			p.stop()
		}
	})
}

// readLoop routes response lines to waiting callers until stdout closes.
func (p *process) readLoop(stdout io.ReadCloser, logger *slog.Logger) {
	defer p.close()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			logger.Warn("unparseable collaborator response", "error", err)
			continue
		}

		p.pendingMu.Lock()
		ch, ok := p.pending[resp.ID]
		if ok {
			delete(p.pending, resp.ID)
		}
		p.pendingMu.Unlock()

		if ok {
			select {
			case ch <- resp:
			default:
			}
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("collaborator stream error", "error", err)
	}
}
