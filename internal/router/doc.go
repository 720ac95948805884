// Package router parses inbound WebSocket frames and dispatches them to
// type-specific handlers registered by the consumer.
//
// Administrative frames (connection_confirmed, subscription_confirmed,
// heartbeat) are identified here but handled by the connection manager;
// domain frames (task_update, agent_update, ...) are forwarded to the
// matching handler and recorded in a bounded update history for the UI.
// Unknown types fall through to the general handler so new server message
// types are never silently dropped.
package router
