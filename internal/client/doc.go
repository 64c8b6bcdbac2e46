// Package client implements the dashboard-side WebSocket consumer.
//
// A Hook owns one connection to the realtime server and keeps it alive:
//
//   - reconnects on unexpected close at a fixed interval, up to a bounded
//     number of attempts; the counter resets whenever a connection opens
//   - routes pushed frames to per-subscription handlers
//   - correlates one-off queries with their responses via generated ids
//
// Connect and Disconnect are idempotent. Once the reconnect budget is
// exhausted the hook goes Disconnected and stays there until the caller
// invokes Connect again.
package client
