package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/logansec/realtime/internal/registry"
)

// Config holds listener settings.
type Config struct {
	Addr         string
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8765"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Server serves the WebSocket endpoint and health checks.
type Server struct {
	cfg      Config
	reg      *registry.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	started  time.Time
}

// New builds a server around an existing registry.
func New(cfg Config, reg *registry.Registry, logger *slog.Logger) *Server {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		reg:    reg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.httpSrv = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s
}

// Handler exposes the mux, for tests that mount it on httptest.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins listening. It returns once the listener goroutine is up;
// listen errors other than graceful shutdown are logged.
func (s *Server) Start(ctx context.Context) error {
	s.started = time.Now()
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down and closes every live connection.
func (s *Server) Stop(ctx context.Context) error {
	s.reg.CloseAll()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// handleWS upgrades the request and pumps inbound frames to the registry.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sock := &wsSocket{conn: conn, writeTimeout: s.cfg.WriteTimeout}
	connID := s.reg.Accept(sock)
	s.logger.Info("client connected", "connection_id", connID, "remote", r.RemoteAddr)

	// Read pump. The registry owns the socket; on read failure it is
	// told to close, which also cancels the connection's subscriptions.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("client read ended", "connection_id", connID, "error", err)
			s.reg.Close(connID)
			return
		}
		s.reg.HandleInbound(connID, data)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.reg.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"connections":    stats.Connections,
		"subscriptions":  stats.TotalSubscriptions,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// wsSocket adapts a gorilla connection to the registry's Socket. Writes
// are serialized; the registry may dispatch from several goroutines.
type wsSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
