package router

import (
	"encoding/json"
	"time"
)

// Message types observed on the wire. Every frame is a JSON object with a
// mandatory "type" discriminator.
const (
	// Administrative (server -> client), bookkeeping only.
	TypeConnectionConfirmed   = "connection_confirmed"
	TypeSubscriptionConfirmed = "subscription_confirmed"

	// Liveness (both directions).
	TypeHeartbeat         = "heartbeat"
	TypeHeartbeatResponse = "heartbeat_response"

	// Client -> server.
	TypeSubscribeTask = "subscribe_task"

	// Domain (server -> client), forwarded to handlers.
	TypeTaskUpdate              = "task_update"
	TypeAgentUpdate             = "agent_update"
	TypeDeliverableUpdate       = "deliverable_update"
	TypeThinkingStep            = "thinking_step"
	TypeGoalDecompositionStart  = "goal_decomposition_start"
	TypeGoalDecompositionDone   = "goal_decomposition_complete"
)

// domainTypes is the set of known domain message types.
var domainTypes = map[string]struct{}{
	TypeTaskUpdate:             {},
	TypeAgentUpdate:            {},
	TypeDeliverableUpdate:      {},
	TypeThinkingStep:           {},
	TypeGoalDecompositionStart: {},
	TypeGoalDecompositionDone:  {},
}

// IsAdministrative reports whether msgType is a handshake/subscription
// acknowledgement that must not reach domain handlers.
func IsAdministrative(msgType string) bool {
	return msgType == TypeConnectionConfirmed || msgType == TypeSubscriptionConfirmed
}

// IsDomain reports whether msgType is a known domain message type.
func IsDomain(msgType string) bool {
	_, ok := domainTypes[msgType]
	return ok
}

// Message is one parsed inbound frame. Constructed per frame, consumed by
// Dispatch, then discarded; the Payload aliases the frame's raw bytes.
type Message struct {
	// Type is the wire discriminator.
	Type string

	// Topic is the entity key the message is scoped to (task id), empty
	// for unscoped messages.
	Topic string

	// Payload is the frame's "data" object, verbatim.
	Payload json.RawMessage

	// ServerTime is the server's "timestamp" field, verbatim (the server
	// sends ISO 8601 strings).
	ServerTime string

	// ReceivedAt is the local receive time.
	ReceivedAt time.Time
}

// envelope is the wire shape shared by all inbound frames.
type envelope struct {
	Type      string          `json:"type"`
	TaskID    string          `json:"task_id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HandlerFunc consumes one dispatched message. Handlers run synchronously
// on the connection manager's event loop and must not block or call back
// into the manager.
type HandlerFunc func(Message)

// TopicFilter decides whether an entity-scoped message should be delivered.
// A nil filter delivers everything.
type TopicFilter func(topic string) bool

// Config holds router settings.
type Config struct {
	// HistorySize bounds the rolling update history. Default: 50.
	HistorySize int
}

// DefaultConfig returns default router configuration.
func DefaultConfig() Config {
	return Config{
		HistorySize: 50,
	}
}

// Stats contains routing counters.
type Stats struct {
	Dispatched   int64 // domain messages delivered to a handler
	ParseErrors  int64 // malformed frames dropped
	UnknownTypes int64 // frames routed to the general handler by fallback
	Filtered     int64 // entity-scoped frames suppressed by the topic filter
}
