// Package stream keeps a websocket subscription to one CLOB channel alive and
// fans decoded events out to listeners.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/pkg/logger"
	"github.com/GoPolymarket/polyclob/internal/pkg/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultBaseURL              = "wss://ws-subscriptions-clob.polymarket.com"
	DefaultKeepaliveInterval    = 10 * time.Second
	DefaultReconnectBaseDelay   = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 10 * time.Second

	pingFrame    = "PING"
	pongFrame    = "PONG"
	closeReason  = "Client closing"
	closeTimeout = time.Second
)

var errNotCurrent = errors.New("connection superseded")

type Config struct {
	BaseURL              string
	KeepaliveInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
}

func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:              baseURL,
		KeepaliveInterval:    DefaultKeepaliveInterval,
		ReconnectBaseDelay:   DefaultReconnectBaseDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		HandshakeTimeout:     DefaultHandshakeTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return c
}

type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithScheduler(s Scheduler) Option {
	return func(c *Client) { c.sched = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithListener(l Listener) Option {
	return func(c *Client) { c.listeners.add(l) }
}

// Client owns one logical subscription. At most one connection is live at a
// time and at most one reconnect is pending. Callbacks from a superseded
// connection are dropped by comparing generations.
type Client struct {
	cfg       Config
	sub       Subscription
	url       string
	frame     []byte
	dialer    Dialer
	sched     Scheduler
	log       *slog.Logger
	listeners listenerSet

	mu           sync.Mutex
	state        State
	gen          uint64
	conn         Conn
	closedByUser bool
	reconnecting bool
	exhausted    bool
	attempts     int
	keepalive    Timer
	retry        Timer
	lastErr      error
	runCtx       context.Context
	cancel       context.CancelFunc

	writeMu sync.Mutex
}

func New(cfg Config, sub Subscription, opts ...Option) (*Client, error) {
	frame, err := sub.Frame()
	if err != nil {
		if sub.Channel == UserChannel {
			return nil, apperrors.New(apperrors.ErrAuthUnavailable, "user stream needs L2 credentials", err)
		}
		return nil, apperrors.New(apperrors.ErrInvalidRequest, "invalid subscription", err)
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:   cfg,
		sub:   sub,
		url:   sub.URL(cfg.BaseURL),
		frame: frame,
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewGorillaDialer(cfg.HandshakeTimeout)
	}
	if c.sched == nil {
		c.sched = WallScheduler()
	}
	if c.log == nil {
		c.log = logger.Get()
	}
	c.log = c.log.With("component", "stream", "channel", string(sub.Channel))
	metrics.StreamState.WithLabelValues(string(sub.Channel)).Set(float64(StateIdle))
	return c, nil
}

func (c *Client) AddListener(l Listener) {
	c.listeners.add(l)
}

func (c *Client) Channel() Channel { return c.sub.Channel }

func (c *Client) URL() string { return c.url }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Exhausted reports whether the client gave up after the last allowed
// reconnect attempt.
func (c *Client) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// Err returns the most recent transport failure. After exhaustion it is a
// RECONNECT_EXHAUSTED error wrapping that failure.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Channel:   c.sub.Channel,
		URL:       c.url,
		Topics:    append([]string(nil), c.sub.Topics...),
		State:     c.state,
		Attempts:  c.attempts,
		Exhausted: c.exhausted,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Run dials once and returns. A failed dial hands over to the reconnect
// schedule, so the returned error only reports misuse. Cancelling ctx has the
// same effect as Close.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateClosed {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("stream %s already running (%s)", c.sub.Channel, state)
	}
	c.closedByUser = false
	c.exhausted = false
	c.reconnecting = false
	c.attempts = 0
	c.lastErr = nil
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx, c.cancel = runCtx, cancel
	c.mu.Unlock()

	go c.watch(ctx, runCtx)

	c.connect()
	return nil
}

func (c *Client) watch(parent, runCtx context.Context) {
	<-runCtx.Done()
	if parent.Err() == nil {
		return
	}
	c.mu.Lock()
	current := c.runCtx == runCtx
	c.mu.Unlock()
	if current {
		c.Close()
	}
}

// Close stops keepalive and any pending reconnect, then sends a normal
// closure. No reconnect follows a Close. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closedByUser && c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.closedByUser = true
	c.gen++
	c.reconnecting = false
	c.stopTimersLocked()
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.setStateLocked(StateClosing)
	c.mu.Unlock()

	var err error
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeReason)
		werr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
		if errors.Is(werr, websocket.ErrCloseSent) {
			werr = nil
		}
		err = errors.Join(werr, conn.Close())
	}
	if cancel != nil {
		cancel()
	}

	c.mu.Lock()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	c.log.Info("stream closed by client")
	if err != nil {
		return apperrors.New(apperrors.ErrTransport, "close stream", err)
	}
	return nil
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.closedByUser {
		c.mu.Unlock()
		return
	}
	gen, ctx := c.beginConnectLocked()
	c.mu.Unlock()

	c.dial(ctx, gen)
}

// beginConnectLocked starts a new generation. Callbacks still holding an
// older one are ignored from here on.
func (c *Client) beginConnectLocked() (uint64, context.Context) {
	c.gen++
	c.setStateLocked(StateConnecting)
	return c.gen, c.runCtx
}

func (c *Client) dial(ctx context.Context, gen uint64) {
	log := c.log.With("conn_id", uuid.NewString())
	log.Info("dialing stream", "url", c.url)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, err := c.dialer.Dial(dialCtx, c.url)
	cancel()
	if err != nil {
		log.Warn("stream dial failed", "error", err)
		c.onFailure(gen, apperrors.New(apperrors.ErrTransport, "dial "+c.url, err))
		return
	}
	c.onOpen(gen, conn, log)
}

func (c *Client) onOpen(gen uint64, conn Conn, log *slog.Logger) {
	c.mu.Lock()
	if gen != c.gen || c.closedByUser {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.reconnecting = false
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	log.Info("stream open")

	if err := c.write(gen, c.frame); err != nil {
		log.Warn("subscribe failed", "error", err)
		c.onFailure(gen, apperrors.New(apperrors.ErrTransport, "send subscription", err))
		return
	}

	c.mu.Lock()
	if gen == c.gen {
		c.keepalive = c.sched.Every(c.cfg.KeepaliveInterval, func() { c.ping(gen, log) })
	}
	c.mu.Unlock()

	go c.readLoop(gen, conn, log)
}

func (c *Client) readLoop(gen uint64, conn Conn, log *slog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.onClosed(gen, ce.Code, ce.Text, log)
			} else {
				c.onFailure(gen, apperrors.New(apperrors.ErrTransport, "read", err))
			}
			return
		}
		c.handleText(gen, data, log)
	}
}

func (c *Client) handleText(gen uint64, data []byte, log *slog.Logger) {
	if !c.current(gen) {
		return
	}
	switch string(data) {
	case pongFrame:
		return
	case pingFrame:
		if err := c.write(gen, []byte(pongFrame)); err != nil {
			log.Warn("pong reply failed", "error", err)
		}
		return
	}

	events, errs := Decode(data)
	for _, err := range errs {
		log.Warn("stream decode failure", "error", err)
	}
	for _, ev := range events {
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev Event) {
	metrics.StreamEvents.WithLabelValues(string(c.sub.Channel), string(ev.Type())).Inc()
	for _, l := range c.listeners.snapshot() {
		c.deliver(l, ev)
	}
}

func (c *Client) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.listenerFailed(ev, fmt.Errorf("listener panic: %v", r))
		}
	}()
	if err := l.OnEvent(ev); err != nil {
		c.listenerFailed(ev, err)
	}
}

func (c *Client) listenerFailed(ev Event, err error) {
	metrics.ListenerErrors.WithLabelValues(string(c.sub.Channel)).Inc()
	c.log.Error("listener failed", "event_type", string(ev.Type()), "error", err)
}

func (c *Client) ping(gen uint64, log *slog.Logger) {
	c.mu.Lock()
	live := gen == c.gen && c.state == StateOpen && !c.closedByUser
	c.mu.Unlock()
	if !live {
		return
	}
	if err := c.write(gen, []byte(pingFrame)); err != nil {
		log.Warn("keepalive failed", "error", err)
		c.onFailure(gen, apperrors.New(apperrors.ErrTransport, "keepalive", err))
	}
}

func (c *Client) write(gen uint64, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	ok := gen == c.gen && conn != nil
	c.mu.Unlock()
	if !ok {
		return errNotCurrent
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && !c.closedByUser
}

// onClosed handles a close frame from the peer. A normal closure ends the
// client. Anything else reconnects.
func (c *Client) onClosed(gen uint64, code int, reason string, log *slog.Logger) {
	log.Info("stream closed by peer", "code", code, "reason", reason)
	if code == websocket.CloseNormalClosure {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		conn := c.conn
		c.conn = nil
		c.stopTimersLocked()
		c.setStateLocked(StateClosed)
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.onFailure(gen, apperrors.New(apperrors.ErrTransport, fmt.Sprintf("closed with code %d", code), errors.New(reason)))
}

func (c *Client) onFailure(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.keepalive != nil {
		c.keepalive.Stop()
		c.keepalive = nil
	}
	conn := c.conn
	c.conn = nil
	if !c.closedByUser && !c.reconnecting {
		c.lastErr = err
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// scheduleReconnectLocked waits base*attempt before the next dial and gives up
// once MaxReconnectAttempts have been spent since the last successful open.
func (c *Client) scheduleReconnectLocked() {
	if c.reconnecting {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.exhausted = true
		c.lastErr = apperrors.New(apperrors.ErrReconnectExhausted,
			fmt.Sprintf("gave up after %d reconnect attempts", c.attempts), c.lastErr)
		c.setStateLocked(StateClosed)
		if c.cancel != nil {
			c.cancel()
		}
		c.log.Error("stream reconnect exhausted", "attempts", c.attempts, "error", c.lastErr)
		return
	}

	c.reconnecting = true
	c.attempts++
	delay := c.cfg.ReconnectBaseDelay * time.Duration(c.attempts)
	gen := c.gen
	c.retry = c.sched.AfterFunc(delay, func() { c.retryConnect(gen) })
	c.setStateLocked(StateReconnecting)

	metrics.StreamReconnects.WithLabelValues(string(c.sub.Channel)).Inc()
	c.log.Warn("stream reconnect scheduled", "attempt", c.attempts, "delay", delay)
}

func (c *Client) retryConnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closedByUser {
		c.mu.Unlock()
		return
	}
	c.reconnecting = false
	c.retry = nil
	next, ctx := c.beginConnectLocked()
	c.mu.Unlock()

	c.dial(ctx, next)
}

func (c *Client) stopTimersLocked() {
	if c.keepalive != nil {
		c.keepalive.Stop()
		c.keepalive = nil
	}
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) setStateLocked(s State) {
	c.state = s
	metrics.StreamState.WithLabelValues(string(c.sub.Channel)).Set(float64(s))
}
