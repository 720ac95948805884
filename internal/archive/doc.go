// Package archive implements the batch writer that persists delivered
// domain updates to PostgreSQL.
//
// The archive is append-only: one row per routed message, inserted in
// batches sized by count or flush interval, whichever comes first. It is a
// sink for dashboards and offline inspection; it is not a delivery
// guarantee and records nothing while the connection is down.
package archive
