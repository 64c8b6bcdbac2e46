// wsprobe connects to a realtime server and streams received frames to
// the console. Useful for smoke-testing a deployment.
//
// Usage: go run ./cmd/wsprobe --url ws://localhost:8765/ws --kind security_events
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/logansec/realtime/internal/client"
	"github.com/logansec/realtime/internal/wire"
)

func main() {
	url := flag.String("url", "ws://localhost:8765/ws", "realtime server WebSocket URL")
	kindFlag := flag.String("kind", "health_status", "subscription kind to stream")
	interval := flag.Int64("interval", 5000, "poll interval in milliseconds")
	query := flag.String("query", "", "run a one-off query instead of subscribing")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	hook := client.NewHook(client.Config{
		URL:                  *url,
		ReconnectInterval:    2 * time.Second,
		MaxReconnectAttempts: 5,
	}, logger)
	defer hook.Disconnect()

	logger.Info("connecting", "url", *url)
	if err := hook.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	if *query != "" {
		runQuery(ctx, hook, *query, *verbose, logger)
		return
	}

	kind, err := wire.ParseKind(*kindFlag)
	if err != nil {
		logger.Error("bad kind", "error", err, "valid", wire.Kinds())
		os.Exit(1)
	}

	count := 0
	ok := hook.Subscribe("probe", kind, nil, *interval, func(f wire.ServerFrame) {
		count++
		if *verbose {
			pretty, _ := json.MarshalIndent(f, "", "  ")
			fmt.Printf("--- frame %d ---\n%s\n", count, pretty)
			return
		}
		fmt.Printf("[%s] %s #%d (%d bytes)\n", f.Timestamp, f.Type, count, len(f.Data))
	})
	if !ok {
		logger.Error("subscribe failed")
		os.Exit(1)
	}
	logger.Info("subscribed", "kind", kind, "interval_ms", *interval)

	<-ctx.Done()
	hook.Unsubscribe("probe")
	logger.Info("done", "frames", count)
}

func runQuery(ctx context.Context, hook *client.Hook, q string, verbose bool, logger *slog.Logger) {
	done := make(chan struct{})
	id, ok := hook.Query(wire.QueryRequest{Query: q}, func(f wire.ServerFrame) {
		if f.Type == wire.FrameError {
			logger.Error("query failed", "error", f.Error)
		} else if verbose {
			pretty, _ := json.MarshalIndent(f, "", "  ")
			fmt.Println(string(pretty))
		} else {
			fmt.Printf("[%s] %s (%d bytes)\n", f.Timestamp, f.Type, len(f.Data))
		}
		close(done)
	})
	if !ok {
		logger.Error("query send failed")
		os.Exit(1)
	}
	logger.Info("query sent", "id", id)

	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(60 * time.Second):
		logger.Error("query timed out")
	}
}
