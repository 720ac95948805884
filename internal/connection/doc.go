// Package connection maintains the persistent WebSocket channel between a
// dashboard client and the workspace backend.
//
// A Manager owns one logical connection: it drives the connect/reconnect
// state machine, detects silently-dead transports via heartbeat frames,
// replays subscriptions after every reconnect, and hands inbound frames to
// the message router. All connection state is mutated by a single run-loop
// goroutine; the exported surface is safe to call from any goroutine.
package connection
