package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Router parses inbound frames and dispatches domain messages to
// type-specific handlers. Parse and Dispatch run on the connection
// manager's event loop; handler registration and the read-only accessors
// are safe from any goroutine.
type Router struct {
	logger  *slog.Logger
	history *History
	filter  TopicFilter

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	general  HandlerFunc
	stats    Stats
}

// New creates a Router. filter may be nil for unscoped consumers.
func New(cfg Config, filter TopicFilter, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}

	return &Router{
		logger:   logger,
		history:  NewHistory(cfg.HistorySize),
		filter:   filter,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers fn for one message type, replacing any previous handler.
func (r *Router) Handle(msgType string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = fn
}

// HandleGeneral registers the fallback handler for unknown message types
// and for domain types without a dedicated handler.
func (r *Router) HandleGeneral(fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.general = fn
}

// Parse decodes one frame into a Message. A malformed frame is counted and
// returned as an error; it never panics and must not be counted as received
// by the caller.
func (r *Router) Parse(data []byte, receivedAt time.Time) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.mu.Lock()
		r.stats.ParseErrors++
		r.mu.Unlock()
		return Message{}, fmt.Errorf("parse frame: %w", err)
	}
	if env.Type == "" {
		r.mu.Lock()
		r.stats.ParseErrors++
		r.mu.Unlock()
		return Message{}, fmt.Errorf("parse frame: missing type discriminator")
	}

	return Message{
		Type:       env.Type,
		Topic:      env.TaskID,
		Payload:    env.Data,
		ServerTime: env.Timestamp,
		ReceivedAt: receivedAt,
	}, nil
}

// Dispatch delivers a domain message to its handler and records it in the
// update history. Entity-scoped messages are checked against the topic
// filter first; administrative and heartbeat frames must not be passed here.
// Returns true if a handler consumed the message.
func (r *Router) Dispatch(msg Message) bool {
	if msg.Topic != "" && r.filter != nil && !r.filter(msg.Topic) {
		r.mu.Lock()
		r.stats.Filtered++
		r.mu.Unlock()
		return false
	}

	r.mu.RLock()
	fn, ok := r.handlers[msg.Type]
	general := r.general
	r.mu.RUnlock()

	if !ok {
		// Unknown or unhandled types go to the general bucket so new
		// server message types do not silently lose data.
		fn = general
		if !IsDomain(msg.Type) {
			r.mu.Lock()
			r.stats.UnknownTypes++
			r.mu.Unlock()
		}
	}

	r.history.Add(msg)

	if fn == nil {
		r.logger.Debug("no handler for message", "type", msg.Type, "topic", msg.Topic)
		return false
	}

	fn(msg)

	r.mu.Lock()
	r.stats.Dispatched++
	r.mu.Unlock()
	return true
}

// History returns the rolling update history.
func (r *Router) History() *History {
	return r.history
}

// Stats returns current routing counters.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
