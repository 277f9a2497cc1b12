package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/brunogblum/sindicoOnline-sub001/domain"
)

// State is the connectivity state of the channel client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives the raw JSON payload of one inbound event.
type Handler func(data []byte)

const (
	defaultBaseDelay     = 500 * time.Millisecond
	maxReconnectAttempts = 5
	writeTimeout         = 10 * time.Second
)

// Client maintains the single long-lived board connection. Inbound events
// are dispatched to registered handlers one at a time from the read loop,
// so handlers never run concurrently with each other. After a disconnect
// that was not requested locally the client retries with linearly growing
// delay (base delay times attempt number) and gives up for good after the
// fifth failed attempt until Connect is called again.
type Client struct {
	endpoint  string
	header    http.Header
	dialer    *websocket.Dialer
	baseDelay time.Duration
	logger    *log.Logger

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	attempts   int
	closed     bool
	retryTimer *time.Timer

	handlers     map[string][]Handler
	onConnect    []func()
	onDisconnect []func(reason error)
	onError      []func(err error)

	writeMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHeader sets headers sent on the upgrade request, typically the
// Authorization bearer token.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

// WithBaseDelay overrides the reconnect base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New creates a client for the given ws:// or wss:// endpoint. The client
// stays disconnected until Connect is called.
func New(endpoint string, logger *log.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = log.StandardLogger()
	}
	c := &Client{
		endpoint:  endpoint,
		dialer:    websocket.DefaultDialer,
		baseDelay: defaultBaseDelay,
		logger:    logger,
		handlers:  make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connectivity state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns how many automatic reconnect attempts have been made
// since the last successful connection.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// OnEvent registers a handler for the named event. Multiple handlers per
// name are allowed and run in registration order.
func (c *Client) OnEvent(name string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = append(c.handlers[name], h)
}

// OnConnect registers a callback fired after each successful connection.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnDisconnect registers a callback fired when the connection drops,
// whether locally requested or not.
func (c *Client) OnDisconnect(fn func(reason error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// OnError registers a callback for transport errors.
func (c *Client) OnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

// Connect starts a connection attempt. It is idempotent: calling it while
// connecting or connected does nothing. An explicit Connect resets the
// automatic retry budget.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.closed = false
	c.attempts = 0
	c.stopRetryLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	go c.dial()
}

// Close tears the connection down and halts any pending reconnect. The
// client stays disconnected until the next explicit Connect.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// Emit sends an event with the given payload. It is best effort: while
// disconnected the event is dropped with a debug log and no queueing, per
// the failure semantics of the board protocol.
func (c *Client) Emit(event string, payload any) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state != StateConnected {
		c.logger.WithFields(log.Fields{"event": event, "state": state.String()}).
			Debug("emit dropped while not connected")
		return
	}

	data, err := sonic.Marshal(payload)
	if err != nil {
		c.fireError(err)
		return
	}
	buf, err := sonic.Marshal(domain.Envelope{Event: event, Data: data})
	if err != nil {
		c.fireError(err)
		return
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, buf)
	c.writeMu.Unlock()
	if err != nil {
		c.fireError(err)
	}
}

func (c *Client) dial() {
	conn, resp, err := c.dialer.Dial(c.endpoint, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.fireError(err)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	for _, fn := range c.connectCallbacks() {
		fn()
	}
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		var env domain.Envelope
		if err := sonic.Unmarshal(msg, &env); err != nil {
			c.logger.Warnf("discarding malformed frame: %v", err)
			continue
		}
		c.dispatch(env.Event, env.Data)
	}
}

func (c *Client) dispatch(event string, data []byte) {
	c.mu.Lock()
	hs := make([]Handler, len(c.handlers[event]))
	copy(hs, c.handlers[event])
	c.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, reason error) {
	c.mu.Lock()
	if c.conn != nil && c.conn != conn {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	local := c.closed
	c.conn = nil
	c.state = StateDisconnected
	fns := make([]func(error), len(c.onDisconnect))
	copy(fns, c.onDisconnect)
	c.mu.Unlock()

	_ = conn.Close()
	for _, fn := range fns {
		fn(reason)
	}
	if !local {
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != StateDisconnected {
		return
	}
	if c.attempts >= maxReconnectAttempts {
		c.logger.Warnf("giving up after %d reconnect attempts", maxReconnectAttempts)
		return
	}
	c.attempts++
	delay := reconnectDelay(c.baseDelay, c.attempts)
	c.logger.WithFields(log.Fields{"attempt": c.attempts, "delay": delay.String()}).
		Debug("scheduling reconnect")
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()
		c.dial()
	})
}

// reconnectDelay grows linearly with the attempt number.
func reconnectDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

func (c *Client) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Client) connectCallbacks() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fns := make([]func(), len(c.onConnect))
	copy(fns, c.onConnect)
	return fns
}

func (c *Client) fireError(err error) {
	c.mu.Lock()
	fns := make([]func(error), len(c.onError))
	copy(fns, c.onError)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
