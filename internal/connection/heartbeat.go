package connection

import (
	"log/slog"
	"time"
)

// heartbeatMonitor is the liveness layer for one logical connection. It is
// pure infrastructure, orthogonal to message routing: it sends a client
// liveness frame on a fixed cadence, echoes server-initiated heartbeats,
// and declares the transport stale when the server goes quiet for
// multiple * interval. All calls happen on the manager's run loop.
type heartbeatMonitor struct {
	interval time.Duration
	multiple int
	clientID string
	logger   *slog.Logger

	// send is the manager's frame entry point. The monitor never touches
	// the transport directly.
	send func(v any) error

	ticker   *time.Ticker
	lastBeat time.Time
}

func newHeartbeatMonitor(interval time.Duration, multiple int, clientID string, send func(v any) error, logger *slog.Logger) *heartbeatMonitor {
	return &heartbeatMonitor{
		interval: interval,
		multiple: multiple,
		clientID: clientID,
		logger:   logger,
		send:     send,
	}
}

// start arms the cadence ticker. The staleness window opens at now so a
// fresh connection is never immediately stale.
func (h *heartbeatMonitor) start(now time.Time) {
	h.stop()
	h.lastBeat = now
	h.ticker = time.NewTicker(h.interval)
}

// stop disarms the ticker. Safe to call when already stopped.
func (h *heartbeatMonitor) stop() {
	if h.ticker != nil {
		h.ticker.Stop()
		h.ticker = nil
	}
}

// C returns the cadence channel, or nil when stopped (a nil channel never
// fires in a select).
func (h *heartbeatMonitor) C() <-chan time.Time {
	if h.ticker == nil {
		return nil
	}
	return h.ticker.C
}

// tick sends the client liveness frame. Send failures are swallowed: a
// heartbeat on a transport that is not open is a no-op, never an error
// that escapes the monitor.
func (h *heartbeatMonitor) tick(now time.Time) {
	frame := heartbeatFrame{
		Type:      "heartbeat",
		ClientID:  h.clientID,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
	if err := h.send(frame); err != nil {
		h.logger.Debug("heartbeat send skipped", "error", err)
	}
}

// serverHeartbeat records a server-initiated liveness probe and immediately
// echoes the response frame.
func (h *heartbeatMonitor) serverHeartbeat(now time.Time) {
	h.lastBeat = now

	frame := heartbeatResponseFrame{
		Type:      "heartbeat_response",
		ClientID:  h.clientID,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
	if err := h.send(frame); err != nil {
		h.logger.Debug("heartbeat response skipped", "error", err)
	}
}

// stale reports whether the server has been silent past the liveness
// window. Always false when the monitor is configured permissive
// (multiple <= 0).
func (h *heartbeatMonitor) stale(now time.Time) bool {
	if h.multiple <= 0 {
		return false
	}
	return now.Sub(h.lastBeat) > h.interval*time.Duration(h.multiple)
}

// last returns the time of the most recent server heartbeat.
func (h *heartbeatMonitor) last() time.Time {
	return h.lastBeat
}
