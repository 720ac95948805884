package connection

import (
	"sync"
	"time"
)

// Stats is a snapshot of connection counters. Counters accumulate for the
// life of the manager; ConnectionOpenedAt is reset on every fresh connect.
type Stats struct {
	TotalConnections   int64
	ReconnectAttempts  int64
	MessagesReceived   int64
	MessagesSent       int64
	LastHeartbeatAt    time.Time
	ConnectionOpenedAt time.Time
}

// statsCollector aggregates counters. Mutation happens on the run loop;
// Snapshot is safe from any goroutine.
type statsCollector struct {
	mu sync.RWMutex
	s  Stats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (c *statsCollector) connectionOpened(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.TotalConnections++
	c.s.ConnectionOpenedAt = now
}

func (c *statsCollector) reconnectAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.ReconnectAttempts++
}

func (c *statsCollector) messageReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.MessagesReceived++
}

func (c *statsCollector) messageSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.MessagesSent++
}

func (c *statsCollector) heartbeat(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.LastHeartbeatAt = now
}

// snapshot returns a copy of the current counters.
func (c *statsCollector) snapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}
