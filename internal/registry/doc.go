// Package registry implements the Connection Registry component.
//
// The Connection Registry:
//   - Owns the connection-id → socket map and per-connection subscription sets
//   - Is the sole path for outbound delivery (dispatch drops on closed)
//   - Parses inbound frames and routes subscribe/unsubscribe/query/ping
//   - Runs a per-connection heartbeat that self-cancels on close
//   - Treats socket write failure as a client-initiated close
package registry
