// Package server exposes the realtime feed over HTTP.
//
// Endpoints:
//   - /ws      WebSocket upgrade; each connection is handed to the registry
//   - /healthz liveness plus connection counts
//
// The server owns the listener lifecycle only. Frame semantics live in the
// registry; the server's job is pumping bytes between sockets and it.
package server
