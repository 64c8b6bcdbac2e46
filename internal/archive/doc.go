// Package archive persists delivered update frames to PostgreSQL.
//
// The writer consumes the registry's delivery tap, accumulates rows, and
// flushes them in batches when either the batch fills or the flush
// interval elapses. Inserts are append-only with ON CONFLICT DO NOTHING.
//
// The archive is optional; when disabled nothing in the hot path touches
// the database.
package archive
