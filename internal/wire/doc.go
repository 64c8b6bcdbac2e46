// Package wire defines the text-frame protocol spoken between dashboard
// clients and the realtime server.
//
// Conventions:
//   - Frames: JSON objects with a "type" discriminator
//   - Timestamps: RFC 3339 UTC strings stamped at frame construction
//   - Subscription kinds: closed enum, unknown kinds are a parse error
package wire
