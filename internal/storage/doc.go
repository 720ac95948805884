// Package storage provides the PostgreSQL connection pool for the archive
// sink. The archiver keeps a single pool; all writes go through
// internal/archive.
package storage
