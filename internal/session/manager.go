// Package session owns the lifetime of the single chat connection: dialing,
// the session-token handshake, heartbeats and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-client/internal/models"
	"chat-client/internal/protocol"
	"chat-client/internal/websocket"
	"chat-client/pkg/logger"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingToken
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingToken:
		return "awaiting-token"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrNoSession rejects chat content while no session token is held.
	ErrNoSession    = errors.New("no session yet")
	ErrNotConnected = errors.New("not connected")
	ErrPongTimeout  = errors.New("no pong received before deadline")
)

// TransportError wraps a dial, send or receive failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Handler receives every inbound frame of a connection, in arrival order.
// ctx identifies the connection the frame arrived on.
type Handler interface {
	Handle(ctx context.Context, raw []byte)
}

// TickerFunc starts a ticker; stop releases it.
type TickerFunc func(d time.Duration) (ticks <-chan time.Time, stop func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Option func(*Manager)

// WithTicker replaces the heartbeat ticker source.
func WithTicker(fn TickerFunc) Option {
	return func(m *Manager) { m.newTicker = fn }
}

// WithPongTimeout enables the optional pong deadline. Zero disables it.
func WithPongTimeout(d time.Duration) Option {
	return func(m *Manager) { m.pongTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Connection is one logical chat session. All mutable fields are guarded by
// the owning Manager's mutex.
type Connection struct {
	ID          uuid.UUID
	URL         string
	displayName string
	pendingNick string

	conn     websocket.Conn
	state    State
	running  bool
	token    string
	interval time.Duration
	// contents waiting for a token before they may be sent
	pending []string

	hb       *heartbeat
	lastPing time.Time
	lastPong time.Time

	ctx    context.Context
	cancel context.CancelFunc
	// closed when the receive loop has returned
	recvDone chan struct{}
	// serializes heartbeat reconfiguration
	hbMu sync.Mutex
}

type heartbeat struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

type connKey struct{}

// closer identifies which task asks for a teardown, so it never waits on itself.
type closer int

const (
	byOwner closer = iota
	byReceiveLoop
	byHeartbeat
)

// Manager drives the connection state machine. Exactly one Connection
// exists at a time.
type Manager struct {
	transport   websocket.Transport
	sink        models.Sink
	handler     Handler
	logger      *slog.Logger
	newTicker   TickerFunc
	now         func() time.Time
	pongTimeout time.Duration

	// lifecycle serializes Connect and Disconnect
	lifecycle sync.Mutex
	mu        sync.Mutex
	current   *Connection
}

func NewManager(transport websocket.Transport, sink models.Sink, opts ...Option) *Manager {
	if sink == nil {
		sink = models.Discard
	}
	m := &Manager{
		transport: transport,
		sink:      sink,
		logger:    logger.Component("session"),
		newTicker: realTicker,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetHandler installs the inbound frame handler. It must be called before Connect.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// HandshakeURL appends the display name as a username query parameter.
func HandshakeURL(rawURL, displayName string) string {
	if displayName == "" {
		return rawURL
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
		if strings.HasSuffix(rawURL, "?") || strings.HasSuffix(rawURL, "&") {
			sep = ""
		}
	}
	return rawURL + sep + "username=" + url.QueryEscape(displayName)
}

// Connect retires any current connection and dials a new one. A dial
// failure leaves the manager Disconnected and is returned as a TransportError;
// no retry is attempted.
func (m *Manager) Connect(ctx context.Context, rawURL, displayName string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	old := m.current
	m.mu.Unlock()
	if old != nil {
		m.teardown(old, nil, byOwner)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		ID:          uuid.New(),
		URL:         HandshakeURL(rawURL, displayName),
		displayName: displayName,
		state:       StateConnecting,
		ctx:         connCtx,
		cancel:      cancel,
		recvDone:    make(chan struct{}),
	}

	m.mu.Lock()
	m.current = c
	m.mu.Unlock()
	m.logger.Info("connecting", "conn_id", c.ID, "url", c.URL)
	m.emitHealth(c, StateConnecting, nil)

	conn, err := m.transport.Dial(ctx, c.URL)
	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		cancel()

		m.mu.Lock()
		c.state = StateDisconnected
		if m.current == c {
			m.current = nil
		}
		m.mu.Unlock()

		m.logger.Error("connect failed", "conn_id", c.ID, "error", err)
		m.emitHealth(c, StateDisconnected, terr)
		return terr
	}

	m.mu.Lock()
	c.conn = conn
	c.state = StateAwaitingToken
	c.running = true
	// the roster probe waits for the token like any other chat content
	c.pending = append(c.pending, protocol.RosterRequest)
	m.mu.Unlock()

	m.logger.Info("connected, awaiting session token", "conn_id", c.ID)
	m.emitHealth(c, StateAwaitingToken, nil)

	go m.receiveLoop(c)
	return nil
}

// Disconnect closes the current connection, if any.
func (m *Manager) Disconnect() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	c := m.current
	m.mu.Unlock()
	if c != nil {
		m.teardown(c, nil, byOwner)
	}
}

func (m *Manager) receiveLoop(c *Connection) {
	defer close(c.recvDone)
	ctx := context.WithValue(c.ctx, connKey{}, c)

	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()

	for {
		raw, err := c.conn.Receive(ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, websocket.ErrClosed) {
				return
			}
			m.logger.Error("receive failed", "conn_id", c.ID, "error", err)
			m.teardown(c, &TransportError{Op: "receive", Err: err}, byReceiveLoop)
			return
		}

		m.logger.Debug("frame received", "conn_id", c.ID, "bytes", len(raw))
		if ctx.Err() != nil {
			return
		}
		if handler != nil {
			handler.Handle(ctx, raw)
		}
	}
}

// teardown moves c through Closing to Disconnected. It is safe to call more
// than once; only the first call does work. The owner waits for both the
// heartbeat and the receive loop to finish, so no frame of c is still being
// handled once it returns. The heartbeat never waits on the receive loop,
// which may itself be waiting on the heartbeat in ConfigureHeartbeat.
func (m *Manager) teardown(c *Connection, cause error, by closer) {
	m.mu.Lock()
	if c.state == StateClosing || c.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	c.state = StateClosing
	c.running = false
	hb := c.hb
	c.hb = nil
	m.mu.Unlock()

	m.logger.Info("closing connection", "conn_id", c.ID)
	m.emitHealth(c, StateClosing, nil)

	// The heartbeat must be gone before the transport is released.
	c.cancel()
	if hb != nil && by != byHeartbeat {
		<-hb.done
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			m.logger.Debug("transport close", "conn_id", c.ID, "error", err)
		}
		if by == byOwner {
			<-c.recvDone
		}
	}

	m.mu.Lock()
	c.state = StateDisconnected
	c.token = ""
	c.interval = 0
	c.pending = nil
	if m.current == c {
		m.current = nil
	}
	m.mu.Unlock()

	if cause != nil {
		m.logger.Error("disconnected", "conn_id", c.ID, "error", cause)
	} else {
		m.logger.Info("disconnected", "conn_id", c.ID)
	}
	m.emitHealth(c, StateDisconnected, cause)
}

// connLocked resolves the connection a call applies to. Frames carry their
// connection in ctx and are ignored once it is no longer current.
func (m *Manager) connLocked(ctx context.Context) *Connection {
	if c, ok := ctx.Value(connKey{}).(*Connection); ok {
		if c != m.current {
			return nil
		}
		return c
	}
	return m.current
}

// closerFor reports whether ctx belongs to the receive loop of c, which is the
// case for every call made while handling one of its frames.
func (m *Manager) closerFor(ctx context.Context, c *Connection) closer {
	if owner, ok := ctx.Value(connKey{}).(*Connection); ok && owner == c {
		return byReceiveLoop
	}
	return byOwner
}

// AcceptToken stores a server-issued token, moves the connection to Active
// and releases everything that was waiting for it.
func (m *Manager) AcceptToken(ctx context.Context, token string) {
	if token == "" {
		m.logger.Warn("ignoring empty session token")
		return
	}

	m.mu.Lock()
	c := m.connLocked(ctx)
	if c == nil || !c.running {
		m.mu.Unlock()
		return
	}
	first := c.state == StateAwaitingToken
	c.token = token
	c.state = StateActive
	pending := c.pending
	c.pending = nil
	m.mu.Unlock()

	if first {
		m.logger.Info("session established", "conn_id", c.ID)
		m.emitHealth(c, StateActive, nil)
	}

	for _, content := range pending {
		if err := m.send(ctx, c, protocol.ChatMessage(content, token)); err != nil {
			m.teardown(c, err, m.closerFor(ctx, c))
			return
		}
	}
}

// ConfigureHeartbeat (re)starts the heartbeat at interval. A running
// heartbeat is stopped and awaited first, so at most one ever runs.
func (m *Manager) ConfigureHeartbeat(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	c := m.connLocked(ctx)
	m.mu.Unlock()
	if c == nil || interval <= 0 {
		return
	}

	c.hbMu.Lock()
	defer c.hbMu.Unlock()

	// c.hb stays set until the old task is gone, so a concurrent teardown
	// still waits for it before releasing the transport.
	m.mu.Lock()
	old := c.hb
	m.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !c.running {
		return
	}

	hbCtx, cancel := context.WithCancel(c.ctx)
	hb := &heartbeat{interval: interval, cancel: cancel, done: make(chan struct{})}
	c.hb = hb
	c.interval = interval

	m.logger.Info("heartbeat configured", "conn_id", c.ID, "interval", interval)
	go m.runHeartbeat(hbCtx, c, hb)
}

func (m *Manager) runHeartbeat(ctx context.Context, c *Connection, hb *heartbeat) {
	defer close(hb.done)

	ticks, stop := m.newTicker(hb.interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if err := m.beat(ctx, c); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Error("heartbeat failed", "conn_id", c.ID, "error", err)
				m.teardown(c, err, byHeartbeat)
				return
			}
		}
	}
}

func (m *Manager) beat(ctx context.Context, c *Connection) error {
	m.mu.Lock()
	token := c.token
	if m.pongTimeout > 0 && !c.lastPing.IsZero() && c.lastPong.Before(c.lastPing) &&
		m.now().Sub(c.lastPing) >= m.pongTimeout {
		m.mu.Unlock()
		return ErrPongTimeout
	}
	m.mu.Unlock()

	if token == "" {
		return nil
	}

	if err := c.conn.Send(ctx, protocol.Encode(protocol.Ping(token))); err != nil {
		return &TransportError{Op: "heartbeat", Err: err}
	}

	m.mu.Lock()
	if c.lastPing.IsZero() || !c.lastPong.Before(c.lastPing) {
		c.lastPing = m.now()
	}
	m.mu.Unlock()
	return nil
}

// Pong records a heartbeat acknowledgement.
func (m *Manager) Pong(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.connLocked(ctx); c != nil {
		c.lastPong = m.now()
	}
}

// SendChat sends content with the current token. Without a token the
// content never reaches the transport and ErrNoSession is returned.
func (m *Manager) SendChat(ctx context.Context, content string) error {
	m.mu.Lock()
	c := m.connLocked(ctx)
	if c == nil || !c.running {
		m.mu.Unlock()
		return ErrNotConnected
	}
	token := c.token
	m.mu.Unlock()

	if token == "" {
		return ErrNoSession
	}

	if err := m.send(ctx, c, protocol.ChatMessage(content, token)); err != nil {
		m.teardown(c, err, m.closerFor(ctx, c))
		return err
	}
	return nil
}

// RequestRoster asks the server for an authoritative member snapshot.
func (m *Manager) RequestRoster(ctx context.Context) error {
	return m.SendChat(ctx, protocol.RosterRequest)
}

func (m *Manager) send(ctx context.Context, c *Connection, o protocol.Outbound) error {
	if err := c.conn.Send(ctx, protocol.Encode(o)); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	m.logger.Debug("frame sent", "conn_id", c.ID, "type", o.Type)
	return nil
}

// Token returns the session token of the current connection.
func (m *Manager) Token(ctx context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.connLocked(ctx)
	if c == nil || c.token == "" {
		return "", false
	}
	return c.token, true
}

func (m *Manager) HasToken(ctx context.Context) bool {
	_, ok := m.Token(ctx)
	return ok
}

// SetPendingNick remembers a locally requested nickname until the server
// confirms the rename.
func (m *Manager) SetPendingNick(ctx context.Context, nick string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.connLocked(ctx); c != nil {
		c.pendingNick = nick
	}
}

// ConfirmRename applies a server-confirmed rename to the local display name
// when it concerns this client.
func (m *Manager) ConfirmRename(ctx context.Context, oldName, newName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.connLocked(ctx)
	if c == nil {
		return
	}
	if (c.displayName != "" && c.displayName == oldName) || (c.pendingNick != "" && c.pendingNick == newName) {
		c.displayName = newName
		c.pendingNick = ""
	}
}

// MentionNames lists the names that count as a mention of this client.
func (m *Manager) MentionNames(ctx context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.connLocked(ctx)
	if c == nil {
		return nil
	}
	var names []string
	if c.displayName != "" {
		names = append(names, c.displayName)
	}
	if c.pendingNick != "" && c.pendingNick != c.displayName {
		names = append(names, c.pendingNick)
	}
	return names
}

func (m *Manager) DisplayName() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ""
	}
	return m.current.displayName
}

// State reports the state of the current connection.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return StateDisconnected
	}
	return m.current.state
}

// HeartbeatInterval is the interval of the running heartbeat, or zero.
func (m *Manager) HeartbeatInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.hb == nil {
		return 0
	}
	return m.current.interval
}

// ServerURL is the handshake URL of the current connection.
func (m *Manager) ServerURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ""
	}
	return m.current.URL
}

func (m *Manager) emitHealth(c *Connection, state State, cause error) {
	var text string
	switch state {
	case StateConnecting:
		name := c.displayName
		if name == "" {
			name = "anonymous"
		}
		text = fmt.Sprintf("Connecting to %s as %s...", c.URL, name)
	case StateAwaitingToken:
		text = "Connected to " + c.URL
	case StateActive:
		text = "Session established"
	case StateClosing:
		text = "Closing connection"
	case StateDisconnected:
		text = "Disconnected"
		if cause != nil {
			text = "Disconnected: " + cause.Error()
		}
	}

	m.sink.Emit(models.Event{
		Kind:      models.EventHealth,
		Timestamp: m.now(),
		State:     state.String(),
		Text:      text,
		Err:       cause,
	})
}
