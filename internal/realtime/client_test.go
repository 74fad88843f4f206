package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newthinker/tradebot/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleLog struct {
	mu     sync.Mutex
	events []realtime.Lifecycle
}

func (l *lifecycleLog) add(e realtime.Lifecycle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *lifecycleLog) kinds() []realtime.LifecycleKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]realtime.LifecycleKind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

func (l *lifecycleLog) snapshot() []realtime.Lifecycle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]realtime.Lifecycle(nil), l.events...)
}

func TestClient_SnapshotsAndTypedHandlers(t *testing.T) {
	hub := realtime.NewHub(responder{}, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c := realtime.NewClient(realtime.ClientConfig{URL: wsURL(srv), PingInterval: 20 * time.Millisecond}, nil)
	log := &lifecycleLog{}
	c.OnLifecycle(log.add)

	var mu sync.Mutex
	got := map[realtime.EventType]int{}
	count := func(t realtime.EventType) {
		mu.Lock()
		defer mu.Unlock()
		got[t]++
	}
	seen := func(t realtime.EventType) int {
		mu.Lock()
		defer mu.Unlock()
		return got[t]
	}

	realtime.Handle(c, func(e realtime.SignalMatrixUpdate) { count(e.EventType()) })
	realtime.Handle(c, func(e realtime.TradeUpdate) { count(e.EventType()) })
	realtime.Handle(c, func(e realtime.PortfolioUpdate) { count(e.EventType()) })
	offPong := realtime.Handle(c, func(e realtime.Pong) { count(e.EventType()) })
	var botStatus int
	realtime.Handle(c, func(realtime.BotStatus) { botStatus++ })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return seen(realtime.TypeSignalMatrixUpdate) == 1 &&
			seen(realtime.TypeTradeUpdate) == 1 &&
			seen(realtime.TypePortfolioUpdate) == 1
	}, 2*time.Second, 5*time.Millisecond, "three snapshots on connect")
	assert.Equal(t, realtime.StateConnected, c.State())

	require.Eventually(t, func() bool { return seen(realtime.TypePong) > 0 }, 2*time.Second, 5*time.Millisecond)
	offPong()
	pongs := seen(realtime.TypePong)
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, seen(realtime.TypePong)-pongs, 1, "off removes the handler")
	assert.Zero(t, botStatus, "handlers only see their own event type")

	require.NoError(t, c.Send(realtime.RequestActiveTrades{}))
	require.Eventually(t, func() bool { return seen(realtime.TypeTradeUpdate) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}

	assert.Equal(t, []realtime.LifecycleKind{realtime.LifecycleConnected, realtime.LifecycleDisconnected}, log.kinds())
	assert.True(t, log.snapshot()[1].Clean)
	assert.Equal(t, realtime.StateDisconnected, c.State())
	assert.ErrorIs(t, c.Send(realtime.Ping{}), realtime.ErrNotConnected)
}

func TestClient_MaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	c := realtime.NewClient(realtime.ClientConfig{
		URL:         url,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		MaxAttempts: 3,
	}, nil)
	log := &lifecycleLog{}
	c.OnLifecycle(log.add)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx)
	require.ErrorIs(t, err, realtime.ErrMaxAttempts)

	events := log.snapshot()
	require.Len(t, events, 4)
	wantDelays := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	for i, want := range wantDelays {
		assert.Equal(t, realtime.LifecycleReconnecting, events[i].Kind)
		assert.Equal(t, i+1, events[i].Attempt)
		assert.Equal(t, want, events[i].Delay)
	}
	assert.Equal(t, realtime.LifecycleMaxAttempts, events[3].Kind)
	assert.Equal(t, realtime.StateDisconnected, c.State())
}

func TestClient_PongTimeoutReconnects(t *testing.T) {
	// accepts connections but never answers
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := realtime.NewClient(realtime.ClientConfig{
		URL:          wsURL(srv),
		BaseDelay:    time.Millisecond,
		MaxAttempts:  1,
		PingInterval: 10 * time.Millisecond,
		PongTimeout:  20 * time.Millisecond,
	}, nil)
	log := &lifecycleLog{}
	c.OnLifecycle(log.add)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// every successful connect resets the attempt counter, so the client keeps going
	require.Eventually(t, func() bool { return len(log.kinds()) >= 6 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []realtime.LifecycleKind{
		realtime.LifecycleConnected,
		realtime.LifecycleDisconnected,
		realtime.LifecycleReconnecting,
		realtime.LifecycleConnected,
		realtime.LifecycleDisconnected,
		realtime.LifecycleReconnecting,
	}, log.kinds()[:6])
	events := log.snapshot()
	assert.False(t, events[1].Clean)
	assert.ErrorIs(t, events[1].Err, realtime.ErrPongTimeout)
	assert.Equal(t, 1, events[5].Attempt)
}

func TestClient_RunTwice(t *testing.T) {
	hub := realtime.NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c := realtime.NewClient(realtime.ClientConfig{URL: wsURL(srv)}, nil)
	connected := make(chan struct{}, 1)
	c.OnLifecycle(func(l realtime.Lifecycle) {
		if l.Kind == realtime.LifecycleConnected {
			connected <- struct{}{}
		}
	})

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	<-connected

	assert.ErrorIs(t, c.Run(context.Background()), realtime.ErrRunning)
	c.Close()
	assert.NoError(t, <-done)
}
