// Package database provides the PostgreSQL connection pool used by the
// optional delivery archive.
package database
