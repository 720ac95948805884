package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goalpost/realtime/internal/router"
)

// Manager owns one logical connection to the workspace backend. It drives
// the state machine across physical transports: dial, await confirmation,
// heartbeat, replay subscriptions, and schedule backoff retries on failure.
//
// All connection state is owned by a single run-loop goroutine; public
// methods post commands to it and are safe from any goroutine. State,
// Stats, Subscriptions and the router's history are read-only snapshots.
type Manager struct {
	cfg      ManagerConfig
	logger   *slog.Logger
	clientID string

	rtr   *router.Router
	subs  *subscriptionRegistry
	stats *statsCollector
	hb    *heartbeatMonitor

	cmds     chan command
	dials    chan dialResult
	loopDone chan struct{}

	stateMu sync.RWMutex
	state   State
	onState StateHandler
	onError func(error)

	// Run-loop owned. Never touched from other goroutines.
	client         Client
	gen            int  // transport generation; stale dial results are discarded
	attempt        int  // consecutive connection failures since last success
	suppressed     bool // auto-reconnect disabled after intentional disconnect
	confirmed      bool // connection_confirmed received on current transport
	connectTimer   *time.Timer
	reconnectTimer *time.Timer
}

type cmdOp int

const (
	cmdConnect cmdOp = iota
	cmdDisconnect
	cmdReconnect
	cmdSubscribe
	cmdUnsubscribe
	cmdShutdown
)

type command struct {
	op    cmdOp
	topic string
	done  chan struct{}
}

type dialResult struct {
	gen    int
	client Client
	err    error
}

// NewManager creates a Manager and starts its run loop. The manager is
// idle (Disconnected) until Connect is called. Register state and error
// handlers before connecting.
func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Backoff.BaseDelay == 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger.With("workspace", cfg.WorkspaceID),
		clientID: uuid.NewString(),
		subs:     newSubscriptionRegistry(),
		stats:    newStatsCollector(),
		cmds:     make(chan command),
		dials:    make(chan dialResult, 4),
		loopDone: make(chan struct{}),
		state:    StateDisconnected,
	}

	// Unscoped consumers (no subscriptions) receive all domain messages;
	// once topics are registered, entity-scoped messages are filtered.
	filter := func(topic string) bool {
		return m.subs.empty() || m.subs.watching(topic)
	}
	m.rtr = router.New(router.Config{HistorySize: cfg.HistorySize}, filter, logger)
	m.hb = newHeartbeatMonitor(cfg.HeartbeatInterval, cfg.LivenessMultiple, m.clientID, m.sendFrame, m.logger)

	go m.run()

	return m
}

// OnStateChange registers the transition observer. Call before Connect.
func (m *Manager) OnStateChange(fn StateHandler) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.onState = fn
}

// OnError registers the transport error observer. Call before Connect.
func (m *Manager) OnError(fn func(error)) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.onError = fn
}

// Connect opens the logical connection. Idempotent while already
// Connecting or Connected; a no-op while PermanentlyFailed (use Reconnect).
func (m *Manager) Connect() error {
	return m.post(cmdConnect, "")
}

// Disconnect closes the connection intentionally. It cancels every pending
// timer, tears down the transport with close code 1000, and suppresses
// auto-reconnect until Reconnect is called.
func (m *Manager) Disconnect() error {
	return m.post(cmdDisconnect, "")
}

// Reconnect resets the attempt counter and forces a fresh connection,
// including out of PermanentlyFailed.
func (m *Manager) Reconnect() error {
	return m.post(cmdReconnect, "")
}

// Subscribe registers interest in a task. The first reference sends a
// subscribe frame when connected; otherwise the entry is queued and sent
// on the next successful connection. Reference-counted: duplicate
// subscribes send no duplicate frames.
func (m *Manager) Subscribe(topic string) error {
	return m.post(cmdSubscribe, topic)
}

// Unsubscribe drops one reference to a task subscription.
func (m *Manager) Unsubscribe(topic string) error {
	return m.post(cmdUnsubscribe, topic)
}

// Close shuts the manager down: disconnects, stops the run loop, and
// releases all timers. The manager cannot be reused afterwards.
func (m *Manager) Close(ctx context.Context) error {
	cmd := command{op: cmdShutdown, done: make(chan struct{})}
	select {
	case m.cmds <- cmd:
	case <-m.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-m.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Stats returns a snapshot of the connection counters.
func (m *Manager) Stats() Stats {
	return m.stats.snapshot()
}

// Router returns the message router for handler registration and history.
func (m *Manager) Router() *router.Router {
	return m.rtr
}

// Subscriptions returns the active topic registrations.
func (m *Manager) Subscriptions() []Subscription {
	topics := m.subs.topics()
	out := make([]Subscription, 0, len(topics))
	for _, t := range topics {
		out = append(out, Subscription{Topic: t, Kind: KindTask})
	}
	return out
}

// post sends a command to the run loop and waits for it to be applied.
func (m *Manager) post(op cmdOp, topic string) error {
	cmd := command{op: op, topic: topic, done: make(chan struct{})}

	select {
	case m.cmds <- cmd:
	case <-m.loopDone:
		return ErrManagerClosed
	}

	select {
	case <-cmd.done:
		return nil
	case <-m.loopDone:
		return ErrManagerClosed
	}
}

// run is the single goroutine that owns all connection state.
func (m *Manager) run() {
	defer close(m.loopDone)

	for {
		var msgs <-chan TimestampedMessage
		var errs <-chan error
		if m.client != nil {
			msgs = m.client.Messages()
			errs = m.client.Errors()
		}

		select {
		case cmd := <-m.cmds:
			shutdown := m.handleCommand(cmd)
			close(cmd.done)
			if shutdown {
				return
			}

		case res := <-m.dials:
			m.handleDialResult(res)

		case <-timerC(m.connectTimer):
			m.connectTimer = nil
			m.handleConnectTimeout()

		case <-timerC(m.reconnectTimer):
			m.reconnectTimer = nil
			m.stats.reconnectAttempt()
			m.logger.Info("attempting reconnection", "attempt", m.attempt)
			m.dial()

		case now := <-m.hb.C():
			m.handleHeartbeatTick(now)

		case msg := <-msgs:
			m.handleFrame(msg)

		case err := <-errs:
			m.handleTransportError(err)
		}
	}
}

// timerC returns the timer's channel, or nil (never ready) when unarmed.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (m *Manager) handleCommand(cmd command) (shutdown bool) {
	switch cmd.op {
	case cmdConnect:
		switch m.State() {
		case StateConnecting, StateConnected, StateReconnecting:
			// Idempotent: no new transport, no notification, no replay.
		case StateDisconnected:
			m.suppressed = false
			m.attempt = 0
			m.dial()
		case StateError, StatePermanentlyFailed:
			m.logger.Debug("connect ignored; explicit reconnect required", "state", m.State())
		}

	case cmdDisconnect:
		m.disconnect()

	case cmdReconnect:
		m.stopTimers()
		m.teardownTransport(true)
		m.attempt = 0
		m.suppressed = false
		m.dial()

	case cmdSubscribe:
		if m.subs.add(cmd.topic) && m.State() == StateConnected {
			if err := m.sendSubscribe(cmd.topic); err != nil {
				m.logger.Warn("subscribe frame failed, will replay on reconnect",
					"topic", cmd.topic,
					"error", err,
				)
			}
		}

	case cmdUnsubscribe:
		m.subs.remove(cmd.topic)

	case cmdShutdown:
		m.disconnect()
		return true
	}

	return false
}

// dial starts a connection attempt. The dial itself runs in a goroutine so
// the loop stays responsive; its outcome is delivered back tagged with the
// current transport generation.
func (m *Manager) dial() {
	m.setState(StateConnecting)
	m.confirmed = false

	if m.connectTimer == nil {
		m.connectTimer = time.NewTimer(m.cfg.ConnectTimeout)
	}

	cfg := ClientConfig{
		URL:              m.cfg.URL(),
		HandshakeTimeout: m.cfg.ConnectTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}
	cl := NewClient(cfg, m.logger.With("component", "transport"))
	gen := m.gen

	go func() {
		err := cl.Connect(context.Background())
		select {
		case m.dials <- dialResult{gen: gen, client: cl, err: err}:
		case <-m.loopDone:
			cl.Close()
		}
	}()
}

func (m *Manager) handleDialResult(res dialResult) {
	if res.gen != m.gen || m.State() != StateConnecting {
		// A teardown happened while this dial was in flight.
		if res.err == nil {
			res.client.Close()
		}
		return
	}

	if res.err != nil {
		m.failTransport(fmt.Errorf("dial %s: %w", m.cfg.URL(), res.err), closeTransient)
		return
	}

	// Transport is open; stay Connecting until the server confirms the
	// handshake. The connect timer keeps running to bound the wait.
	m.client = res.client
	m.logger.Debug("transport open, awaiting confirmation")
}

// toConnected completes the handshake: stop the connect timer, reset the
// attempt counter, start the heartbeat monitor, notify, then replay every
// held subscription exactly once.
func (m *Manager) toConnected(now time.Time) {
	m.stopConnectTimer()
	m.attempt = 0
	m.confirmed = true
	m.stats.connectionOpened(now)
	m.hb.start(now)

	m.setState(StateConnected)

	for _, topic := range m.subs.topics() {
		if err := m.sendSubscribe(topic); err != nil {
			m.logger.Warn("subscription replay failed", "topic", topic, "error", err)
		}
	}
}

func (m *Manager) handleFrame(msg TimestampedMessage) {
	parsed, err := m.rtr.Parse(msg.Data, msg.ReceivedAt)
	if err != nil {
		// Malformed frames are dropped and not counted as received.
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}
	m.stats.messageReceived()

	switch parsed.Type {
	case router.TypeConnectionConfirmed:
		if m.State() == StateConnecting {
			m.toConnected(msg.ReceivedAt)
		} else {
			m.logger.Debug("duplicate connection_confirmed ignored")
		}

	case router.TypeSubscriptionConfirmed:
		m.logger.Debug("subscription confirmed", "topic", parsed.Topic)

	case router.TypeHeartbeat:
		m.hb.serverHeartbeat(msg.ReceivedAt)
		m.stats.heartbeat(msg.ReceivedAt)

	default:
		if !m.confirmed {
			// Consumers never observe a message before the connection
			// is confirmed.
			m.logger.Debug("dropping frame before confirmation", "type", parsed.Type)
			return
		}
		m.rtr.Dispatch(parsed)
	}
}

func (m *Manager) handleTransportError(err error) {
	kind := classifyClose(err)
	m.logger.Warn("transport error", "error", err, "state", m.State())
	m.failTransport(err, kind)
}

func (m *Manager) handleConnectTimeout() {
	if m.State() != StateConnecting {
		return
	}
	m.failTransport(ErrConnectTimeout, closeTransient)
}

func (m *Manager) handleHeartbeatTick(now time.Time) {
	if m.State() != StateConnected {
		return
	}
	if m.hb.stale(now) {
		m.logger.Warn("no server heartbeat within liveness window, forcing reconnect",
			"last_heartbeat", m.hb.last(),
			"interval", m.cfg.HeartbeatInterval,
			"multiple", m.cfg.LivenessMultiple,
		)
		m.failTransport(ErrStale, closeTransient)
		return
	}
	m.hb.tick(now)
}

// failTransport tears down the current transport and routes the failure:
// intentional closes land in Disconnected, policy rejections go straight
// to PermanentlyFailed, everything else enters the retry path.
func (m *Manager) failTransport(err error, kind closeKind) {
	m.teardownTransport(false)

	// Policy rejections carry the sentinel so consumers can errors.Is them.
	if kind == closePolicy {
		err = fmt.Errorf("%w: %v", ErrPolicyRejected, err)
	}
	m.notifyError(err)

	switch kind {
	case closeIntentional:
		m.suppressed = true
		m.setState(StateDisconnected)

	case closePolicy:
		m.logger.Error("server rejected connection as non-retryable", "error", err)
		m.setState(StatePermanentlyFailed)

	default:
		m.setState(StateError)
		m.scheduleRetry()
	}
}

// scheduleRetry arms the backoff timer for the next attempt, or declares
// the connection permanently failed when attempts are exhausted.
func (m *Manager) scheduleRetry() {
	if m.suppressed {
		m.setState(StateDisconnected)
		return
	}

	m.attempt++
	if !m.cfg.Backoff.ShouldRetry(m.attempt) {
		m.logger.Error("reconnect attempts exhausted", "failures", m.attempt)
		m.setState(StatePermanentlyFailed)
		return
	}

	delay := m.cfg.Backoff.Delay(m.attempt - 1)
	m.reconnectTimer = time.NewTimer(delay)
	m.setState(StateReconnecting)
	m.logger.Info("reconnect scheduled", "attempt", m.attempt, "delay", delay)
}

// disconnect is the intentional teardown path: every timer is cancelled
// before the transport closes, so no stale timer can resurrect the
// connection afterwards.
func (m *Manager) disconnect() {
	if m.State() == StateDisconnected && m.client == nil {
		return
	}

	m.stopTimers()
	m.teardownTransport(true)
	m.suppressed = true
	m.setState(StateDisconnected)
}

// teardownTransport detaches and closes the current transport, if any.
// Bumping the generation invalidates any dial still in flight.
func (m *Manager) teardownTransport(intentional bool) {
	m.gen++
	m.hb.stop()
	m.stopConnectTimer()
	m.confirmed = false

	if m.client != nil {
		if intentional {
			m.client.CloseIntentional()
		} else {
			m.client.Close()
		}
		m.client = nil
	}
}

func (m *Manager) stopTimers() {
	m.stopConnectTimer()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.hb.stop()
}

func (m *Manager) stopConnectTimer() {
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
}

// sendFrame marshals and sends one frame through the current transport,
// counting it on success. Returns ErrNotConnected when no transport is open.
func (m *Manager) sendFrame(v any) error {
	if m.client == nil || !m.client.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := m.client.Send(data); err != nil {
		return err
	}

	m.stats.messageSent()
	return nil
}

func (m *Manager) sendSubscribe(topic string) error {
	return m.sendFrame(subscribeFrame{
		Type:   router.TypeSubscribeTask,
		TaskID: topic,
	})
}

// setState applies a transition and notifies the observer synchronously.
// Re-entering the current state is internal bookkeeping, not a transition,
// and fires no notification.
func (m *Manager) setState(next State) {
	m.stateMu.Lock()
	old := m.state
	if old == next {
		m.stateMu.Unlock()
		return
	}
	m.state = next
	fn := m.onState
	m.stateMu.Unlock()

	m.logger.Info("connection state changed", "from", old, "to", next)
	if fn != nil {
		fn(old, next)
	}
}

func (m *Manager) notifyError(err error) {
	m.stateMu.RLock()
	fn := m.onError
	m.stateMu.RUnlock()

	if fn != nil {
		fn(err)
	}
}
