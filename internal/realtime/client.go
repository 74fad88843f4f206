package realtime

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrMaxAttempts  = errors.New("realtime: max reconnect attempts reached")
	ErrNotConnected = errors.New("realtime: not connected")
	ErrPongTimeout  = errors.New("realtime: pong timeout")
	ErrRunning      = errors.New("realtime: client already running")
)

// State is the connection state of a Client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// LifecycleKind names a connection lifecycle event.
type LifecycleKind string

const (
	LifecycleConnected    LifecycleKind = "connected"
	LifecycleDisconnected LifecycleKind = "disconnected"
	LifecycleReconnecting LifecycleKind = "reconnecting"
	LifecycleMaxAttempts  LifecycleKind = "max_attempts"
)

// Lifecycle describes a connection transition.
type Lifecycle struct {
	Kind    LifecycleKind
	Attempt int
	Delay   time.Duration
	Clean   bool
	Err     error
}

// ClientConfig tunes reconnection and keep-alive.
type ClientConfig struct {
	URL          string
	Header       http.Header
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteWait    time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	return c
}

// Backoff returns min(base*2^(attempt-1), ceiling) for attempt >= 1.
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}

type handler struct {
	id uint64
	fn func(Event)
}

type lifecycleHandler struct {
	id uint64
	fn func(Lifecycle)
}

// Client keeps a WebSocket connection to a Hub alive and dispatches
// inbound events to handlers registered per event type.
type Client struct {
	cfg    ClientConfig
	dialer *websocket.Dialer
	logger *zap.Logger

	mu        sync.RWMutex
	state     State
	conn      *websocket.Conn
	cancel    context.CancelFunc
	handlers  map[EventType][]handler
	lifecycle []lifecycleHandler
	nextID    uint64

	writeMu sync.Mutex
}

// NewClient creates a disconnected client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:      cfg.withDefaults(),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:   logger.Named("ws-client"),
		state:    StateDisconnected,
		handlers: make(map[EventType][]handler),
	}
}

// Handle registers fn for events of type E and returns a func that removes it.
// Handlers run on the read loop and must not block.
func Handle[E Event](c *Client, fn func(E)) (off func()) {
	var zero E
	return c.on(zero.EventType(), func(e Event) {
		if v, ok := e.(E); ok {
			fn(v)
		}
	})
}

func (c *Client) on(t EventType, fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[t] = append(c.handlers[t], handler{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.handlers[t] = slices.DeleteFunc(c.handlers[t], func(h handler) bool { return h.id == id })
	}
}

// OnLifecycle registers a connection lifecycle listener and returns its remover.
func (c *Client) OnLifecycle(fn func(Lifecycle)) (off func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.lifecycle = append(c.lifecycle, lifecycleHandler{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.lifecycle = slices.DeleteFunc(c.lifecycle, func(h lifecycleHandler) bool { return h.id == id })
	}
}

func (c *Client) dispatch(e Event) {
	c.mu.RLock()
	hs := slices.Clone(c.handlers[e.EventType()])
	c.mu.RUnlock()
	for _, h := range hs {
		h.fn(e)
	}
}

func (c *Client) emit(l Lifecycle) {
	c.mu.RLock()
	hs := slices.Clone(c.lifecycle)
	c.mu.RUnlock()
	for _, h := range hs {
		h.fn(l)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close ends Run with a clean disconnect.
func (c *Client) Close() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Send writes an event on the live connection.
func (c *Client) Send(e Event) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, e)
}

func (c *Client) write(conn *websocket.Conn, e Event) error {
	frame, err := Encode(e, time.Now())
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return errors.Wrapf(conn.WriteMessage(websocket.TextMessage, frame), "write %s", e.EventType())
}

// Run connects and keeps reconnecting until ctx is cancelled, Close is called
// or MaxAttempts consecutive reconnects fail, in which case it returns ErrMaxAttempts.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrRunning
	}
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.state = StateDisconnected
		c.mu.Unlock()
	}()

	attempt := 0
	for {
		c.setState(StateConnecting)
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if err == nil {
			attempt = 0
			var clean bool
			clean, err = c.session(ctx, conn)
			c.emit(Lifecycle{Kind: LifecycleDisconnected, Clean: clean, Err: err})
			if clean || ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("connection lost", zap.Error(err))
		} else {
			if ctx.Err() != nil {
				return nil
			}
			err = errors.Wrapf(err, "dial %s", c.cfg.URL)
			c.logger.Warn("connect failed", zap.Int("attempt", attempt), zap.Error(err))
		}

		if attempt >= c.cfg.MaxAttempts {
			c.setState(StateDisconnected)
			c.emit(Lifecycle{Kind: LifecycleMaxAttempts, Attempt: attempt, Err: err})
			c.logger.Error("giving up reconnecting", zap.Int("attempts", attempt))
			return ErrMaxAttempts
		}
		attempt++
		delay := Backoff(c.cfg.BaseDelay, c.cfg.MaxDelay, attempt)
		c.setState(StateReconnecting)
		c.emit(Lifecycle{Kind: LifecycleReconnecting, Attempt: attempt, Delay: delay, Err: err})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session serves one connection. It reports a clean close when the local
// side ended it or the server closed normally.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) (bool, error) {
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()
	c.logger.Info("connected", zap.String("url", c.cfg.URL))
	c.emit(Lifecycle{Kind: LifecycleConnected})

	pongs := make(chan struct{}, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			e, err := Decode(frame)
			if err != nil {
				c.logger.Debug("inbound frame dropped", zap.Error(err))
				continue
			}
			if _, ok := e.(Pong); ok {
				select {
				case pongs <- struct{}{}:
				default:
				}
			}
			c.dispatch(e)
		}
	}()

	for _, req := range []Event{RequestSignalsMatrix{}, RequestActiveTrades{}, RequestPortfolioStatus{}} {
		if err := c.write(conn, req); err != nil {
			return false, err
		}
	}

	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()
	var pongTimer *time.Timer
	var pongDeadline <-chan time.Time
	defer func() {
		if pongTimer != nil {
			pongTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			c.writeMu.Unlock()
			return true, nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, nil
			}
			return false, errors.Wrap(err, "read")
		case <-ping.C:
			if err := c.write(conn, Ping{}); err != nil {
				return false, err
			}
			if pongDeadline == nil {
				pongTimer = time.NewTimer(c.cfg.PongTimeout)
				pongDeadline = pongTimer.C
			}
		case <-pongs:
			if pongTimer != nil {
				pongTimer.Stop()
				pongTimer, pongDeadline = nil, nil
			}
		case <-pongDeadline:
			return false, ErrPongTimeout
		}
	}
}
