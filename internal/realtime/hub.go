package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newthinker/tradebot/internal/core"
	"go.uber.org/zap"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultSendBuffer = 256
	maxMessageSize    = 4096
)

// Responder answers the snapshot requests clients send after connecting.
type Responder interface {
	SignalsMatrix(ctx context.Context) SignalMatrixUpdate
	ActiveTrades(ctx context.Context) TradeUpdate
	PortfolioStatus(ctx context.Context) PortfolioUpdate
}

// Observer receives hub activity, typically for metrics.
type Observer interface {
	ClientsChanged(n int)
	MessageSent(t EventType)
}

type peer struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() { close(p.send) })
}

// Hub fans events out to every connected WebSocket client.
type Hub struct {
	upgrader   websocket.Upgrader
	responder  Responder
	observer   Observer
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	sendBuffer int
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.RWMutex
	clients map[*peer]struct{}
	closed  bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithTimeouts overrides write wait and pong wait. The ping period is 9/10 of pong wait.
func WithTimeouts(write, pong time.Duration) HubOption {
	return func(h *Hub) {
		if write > 0 {
			h.writeWait = write
		}
		if pong > 0 {
			h.pongWait = pong
			h.pingPeriod = pong * 9 / 10
		}
	}
}

// WithObserver attaches an activity observer.
func WithObserver(o Observer) HubOption {
	return func(h *Hub) { h.observer = o }
}

// WithSendBuffer sets the per-client queue length.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithAllowedOrigins restricts upgrades to the listed origins. Empty allows all.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		}
	}
}

// NewHub creates a hub. responder may be nil when clients never ask for snapshots.
func NewHub(responder Responder, logger *zap.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		responder:  responder,
		writeWait:  defaultWriteWait,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPongWait * 9 / 10,
		sendBuffer: defaultSendBuffer,
		logger:     logger.Named("hub"),
		now:        time.Now,
		clients:    make(map[*peer]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetResponder sets the snapshot responder. Call before serving.
func (h *Hub) SetResponder(r Responder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responder = r
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	p := &peer{conn: conn, send: make(chan []byte, h.sendBuffer)}
	if !h.register(p) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			h.now().Add(h.writeWait))
		conn.Close()
		return
	}

	go h.writePump(p)
	h.readPump(r.Context(), p)
}

func (h *Hub) register(p *peer) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[p] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("client connected", zap.String("remote", p.conn.RemoteAddr().String()), zap.Int("clients", n))
	if h.observer != nil {
		h.observer.ClientsChanged(n)
	}
	return true
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	_, ok := h.clients[p]
	delete(h.clients, p)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	p.close()
	h.logger.Debug("client disconnected", zap.Int("clients", n))
	if h.observer != nil {
		h.observer.ClientsChanged(n)
	}
}

// Broadcast queues e for every client. Clients whose queue is full are dropped.
func (h *Hub) Broadcast(e Event) {
	frame, err := Encode(e, h.now())
	if err != nil {
		h.logger.Error("broadcast encode failed", zap.String("type", string(e.EventType())), zap.Error(err))
		return
	}

	var slow []*peer
	h.mu.RLock()
	for p := range h.clients {
		select {
		case p.send <- frame:
		default:
			slow = append(slow, p)
		}
	}
	sent := len(h.clients) - len(slow)
	h.mu.RUnlock()

	for _, p := range slow {
		h.logger.Warn("dropping slow client", zap.String("remote", p.conn.RemoteAddr().String()))
		h.unregister(p)
	}
	if h.observer != nil && sent > 0 {
		h.observer.MessageSent(e.EventType())
	}
}

func (h *Hub) reply(p *peer, e Event) {
	frame, err := Encode(e, h.now())
	if err != nil {
		h.logger.Error("reply encode failed", zap.String("type", string(e.EventType())), zap.Error(err))
		return
	}
	h.mu.RLock()
	_, live := h.clients[p]
	if live {
		select {
		case p.send <- frame:
		default:
			live = false
		}
	}
	h.mu.RUnlock()
	if !live {
		h.unregister(p)
		return
	}
	if h.observer != nil {
		h.observer.MessageSent(e.EventType())
	}
}

func (h *Hub) readPump(ctx context.Context, p *peer) {
	defer func() {
		h.unregister(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(h.now().Add(h.pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(h.now().Add(h.pongWait))
	})

	for {
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("client read failed", zap.Error(err))
			}
			return
		}
		// any client frame proves liveness
		_ = p.conn.SetReadDeadline(h.now().Add(h.pongWait))

		e, err := Decode(frame)
		if err != nil {
			if errors.Is(err, core.ErrUnknownEvent) {
				h.logger.Debug("unknown client event ignored", zap.Error(err))
			} else {
				h.logger.Warn("bad client frame", zap.Error(err))
			}
			continue
		}
		h.handle(ctx, p, e)
	}
}

func (h *Hub) handle(ctx context.Context, p *peer, e Event) {
	if _, ok := e.(Ping); ok {
		h.reply(p, Pong{})
		return
	}

	h.mu.RLock()
	r := h.responder
	h.mu.RUnlock()
	if r == nil {
		return
	}

	switch e.(type) {
	case RequestSignalsMatrix:
		h.reply(p, r.SignalsMatrix(ctx))
	case RequestActiveTrades:
		h.reply(p, r.ActiveTrades(ctx))
	case RequestPortfolioStatus:
		h.reply(p, r.PortfolioStatus(ctx))
	default:
		h.logger.Debug("server event from client ignored", zap.String("type", string(e.EventType())))
	}
}

func (h *Hub) writePump(p *peer) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(h.now().Add(h.writeWait))
			if !ok {
				// the hub dropped this client or is shutting down
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, h.now().Add(h.writeWait)); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	peers := make([]*peer, 0, len(h.clients))
	for p := range h.clients {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		h.unregister(p)
	}
}
