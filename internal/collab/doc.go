// Package collab implements the Collaborator Session component.
//
// The Collaborator Session:
//   - Owns one long-lived query-engine child process (NDJSON over stdio)
//   - Guards against concurrent connect attempts (fail fast, no races)
//   - Retries connects and transport failures with capped exponential backoff
//   - Surfaces well-formed remote errors immediately, without retrying
//   - Applies a per-attempt timeout separate from the retry budget
package collab
