// Package model defines the domain payload types carried inside real-time
// workspace messages (the "data" object of task_update, agent_update,
// deliverable_update and the reasoning-progress frames).
//
// Conventions:
//   - Timestamps: RFC 3339 strings on the wire, time.Time in Go
//   - IDs: opaque strings assigned by the backend
//   - Statuses: lowercase strings; the constants below cover the values the
//     backend emits today, but decoding never rejects new ones
package model
