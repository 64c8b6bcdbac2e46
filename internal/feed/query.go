package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/logansec/realtime/internal/collab"
	"github.com/logansec/realtime/internal/subscription"
	"github.com/logansec/realtime/internal/wire"
)

const defaultQueryPeriodMinutes = 1440 // 24h, matching the dashboard default

// QueryRunner executes ad-hoc query frames against the collaborator
// and dispatches the correlated result. Each run is asynchronous so a
// slow query never blocks the connection's read pump.
type QueryRunner struct {
	caller   Caller
	dispatch subscription.Dispatcher
	timeout  time.Duration
	logger   *slog.Logger
}

// NewQueryRunner creates a runner delivering through the dispatcher.
func NewQueryRunner(caller Caller, dispatch subscription.Dispatcher, timeout time.Duration, logger *slog.Logger) *QueryRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &QueryRunner{
		caller:   caller,
		dispatch: dispatch,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run executes one query and dispatches query_result or error with the
// caller's correlation id. Delivery goes through the registry, so a
// connection that closed mid-query is a silent drop.
func (q *QueryRunner) Run(connID, requestID string, req wire.QueryRequest) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		defer cancel()

		period := req.TimePeriodMinutes
		if period <= 0 {
			period = defaultQueryPeriodMinutes
		}

		args := collab.SearchLogsArgs{
			Query:             req.Query,
			TimePeriodMinutes: period,
			CompartmentID:     req.CompartmentID,
		}

		start := time.Now()
		data, err := q.caller.Call(ctx, collab.CapSearchLogs, args)
		if err != nil {
			q.logger.Warn("query failed",
				"conn_id", connID,
				"request_id", requestID,
				"duration", time.Since(start),
				"error", err,
			)
			q.dispatch.Dispatch(connID, wire.ErrorFrame(requestID, clientError(err).Error()))
			return
		}

		q.dispatch.Dispatch(connID, wire.QueryResult(requestID, data))
	}()
}
