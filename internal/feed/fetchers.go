package feed

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/logansec/realtime/internal/collab"
	"github.com/logansec/realtime/internal/subscription"
	"github.com/logansec/realtime/internal/wire"
)

// ErrUpstreamUnavailable replaces transport-level failure detail in
// client-facing frames.
var ErrUpstreamUnavailable = errors.New("query engine unavailable")

// Caller is the slice of the collaborator session the feed layer uses.
type Caller interface {
	Call(ctx context.Context, name string, args any) (json.RawMessage, error)
}

var emptyArgs = json.RawMessage(`{}`)

// NewFetchers binds every subscription kind to its capability.
func NewFetchers(c Caller) map[wire.SubscriptionKind]subscription.Fetcher {
	return map[wire.SubscriptionKind]subscription.Fetcher{
		wire.KindSecurityEvents: forward(c, collab.CapGetSecurityEvents),
		wire.KindQueryResults:   forward(c, collab.CapSearchLogs),
		wire.KindHealthStatus:   forward(c, collab.CapTestConnection),
		wire.KindMetrics:        forward(c, collab.CapGetDashboardStats),
	}
}

// forward passes the client's filter payload through as capability
// arguments. Remote errors keep their message; transport failures are
// reduced to a generic one so socket peers never see process detail.
func forward(c Caller, capability string) subscription.FetcherFunc {
	return func(ctx context.Context, filter json.RawMessage) (json.RawMessage, error) {
		args := filter
		if len(args) == 0 {
			args = emptyArgs
		}

		data, err := c.Call(ctx, capability, args)
		if err != nil {
			return nil, clientError(err)
		}
		return data, nil
	}
}

// clientError converts a collaborator failure into something safe to
// put on the wire.
func clientError(err error) error {
	var remote *collab.RemoteError
	if errors.As(err, &remote) {
		return errors.New(remote.Message)
	}
	return ErrUpstreamUnavailable
}
