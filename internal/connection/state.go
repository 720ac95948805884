package connection

// State is the lifecycle state of the logical connection. Exactly one State
// exists per Manager; it is owned and mutated only by the run loop.
type State int

const (
	// StateDisconnected is the initial state, and the terminal state after
	// an intentional Disconnect.
	StateDisconnected State = iota

	// StateConnecting covers dialing plus waiting for the server's
	// connection_confirmed handshake acknowledgement.
	StateConnecting

	// StateConnected means the handshake is confirmed and frames flow.
	StateConnected

	// StateReconnecting means a retry is scheduled and the manager is
	// waiting out the backoff delay.
	StateReconnecting

	// StateError is the transient state entered when the transport fails,
	// before a retry is scheduled or the failure is declared permanent.
	StateError

	// StatePermanentlyFailed means retries are exhausted or the server
	// rejected the connection as non-retryable. Only an explicit
	// Reconnect leaves this state.
	StatePermanentlyFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	case StatePermanentlyFailed:
		return "permanently_failed"
	default:
		return "unknown"
	}
}

// StateHandler observes state transitions. It is invoked synchronously with
// the transition, on the run loop, before any message arriving in the new
// state is routed; it must not call back into the Manager.
type StateHandler func(old, new State)
