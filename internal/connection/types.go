package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/goalpost/realtime/internal/backoff"
	"github.com/goalpost/realtime/internal/router"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrStale          = errors.New("connection stale (no heartbeat)")
	ErrConnectTimeout = errors.New("connection establishment timeout")
	ErrPolicyRejected = errors.New("connection rejected by server policy")
	ErrAlreadyClosed  = errors.New("already closed")
	ErrManagerClosed  = errors.New("manager closed")
)

// CloseReasonClient is the close reason sent with code 1000 on intentional
// disconnect. The server treats it as final; receiving it never triggers
// auto-reconnect.
const CloseReasonClient = "client disconnect"

// TimestampedMessage wraps raw frame bytes with the local receive time.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a single physical transport.
type ClientConfig struct {
	URL              string        // full WebSocket URL
	HandshakeTimeout time.Duration // dial handshake deadline
	WriteTimeout     time.Duration // per-write deadline
	BufferSize       int           // inbound message channel buffer
}

// ManagerConfig configures the logical connection.
type ManagerConfig struct {
	// Host is the backend host[:port], without scheme.
	Host string

	// WorkspaceID selects the per-workspace endpoint /ws/<workspace_id>.
	// Ignored when SystemFeed is set.
	WorkspaceID string

	// SystemFeed connects to the fixed-path /ws/system endpoint instead
	// of a workspace endpoint.
	SystemFeed bool

	// TLS selects wss:// over ws://.
	TLS bool

	// ConnectTimeout bounds dial plus the connection_confirmed handshake.
	ConnectTimeout time.Duration

	// HeartbeatInterval is the client liveness frame cadence.
	HeartbeatInterval time.Duration

	// LivenessMultiple declares the connection dead when no server
	// heartbeat arrives within LivenessMultiple * HeartbeatInterval.
	// Zero disables forced reconnects on missed heartbeats.
	LivenessMultiple int

	// WriteTimeout is the per-write deadline on the transport.
	WriteTimeout time.Duration

	// Backoff is the reconnect delay policy.
	Backoff backoff.Policy

	// HistorySize bounds the router's rolling update history.
	HistorySize int

	// BufferSize is the transport's inbound message channel buffer.
	BufferSize int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ConnectTimeout:    10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		LivenessMultiple:  3,
		WriteTimeout:      5 * time.Second,
		Backoff:           backoff.DefaultPolicy(),
		HistorySize:       router.DefaultConfig().HistorySize,
		BufferSize:        1000,
	}
}

// URL returns the WebSocket endpoint for this configuration.
func (c ManagerConfig) URL() string {
	scheme := "ws"
	if c.TLS {
		scheme = "wss"
	}
	if c.SystemFeed {
		return fmt.Sprintf("%s://%s/ws/system", scheme, c.Host)
	}
	return fmt.Sprintf("%s://%s/ws/%s", scheme, c.Host, c.WorkspaceID)
}

// subscribeFrame registers interest in one task with the server.
type subscribeFrame struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

// heartbeatFrame is the client-initiated liveness probe.
type heartbeatFrame struct {
	Type      string `json:"type"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

// heartbeatResponseFrame acknowledges a server-initiated heartbeat.
type heartbeatResponseFrame struct {
	Type      string `json:"type"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}
