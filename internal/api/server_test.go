package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/tradebot/internal/analytics"
	"github.com/newthinker/tradebot/internal/backtest"
	"github.com/newthinker/tradebot/internal/cache"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/feed"
	"github.com/newthinker/tradebot/internal/matrix"
	"github.com/newthinker/tradebot/internal/metrics"
	"github.com/newthinker/tradebot/internal/realtime"
	"github.com/newthinker/tradebot/internal/settings"
	"github.com/newthinker/tradebot/internal/storage/signal"
	"github.com/newthinker/tradebot/internal/trade"
	"go.uber.org/zap"
)

type fakeBot struct {
	running bool
}

func (b *fakeBot) Start(context.Context) error {
	if b.running {
		return core.ErrBotAlreadyRunning
	}
	b.running = true
	return nil
}

func (b *fakeBot) Stop() error {
	if !b.running {
		return core.ErrBotNotRunning
	}
	b.running = false
	return nil
}

func (b *fakeBot) Status() realtime.BotStatus {
	status := "stopped"
	if b.running {
		status = "running"
	}
	return realtime.BotStatus{Status: status, Running: b.running}
}

func (b *fakeBot) Running() bool         { return b.running }
func (b *fakeBot) Uptime() time.Duration { return 0 }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

type testServer struct {
	srv    *Server
	trades *trade.Manager
	bot    *fakeBot
	key    string
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	signals := signal.NewMemoryStore(100, nil)
	trades := trade.NewManager(trade.DefaultConfig(), nil, nil, nil)
	bot := &fakeBot{}
	deps := Dependencies{
		Signals:   signals,
		Matrix:    matrix.NewStore(cache.NewMemory(), time.Minute, nil),
		Trades:    trades,
		Feed:      feed.New(50, nil),
		Whales:    feed.NewWhales(50, 100000),
		Analytics: analytics.NewService(signals, trades, nil),
		Settings: settings.NewManager(settings.Settings{
			General: settings.General{Virtual: true, AnalysisIntervalSeconds: 60},
			Risk:    settings.Risk{InitialCapital: 10000, MaxPositions: 5, RiskPerTrade: 0.02},
			Pairs:   []string{"BTCUSDT"},
		}, nil, nil),
		Bot:     bot,
		Metrics: metrics.NewRegistry(),
		Backtest: func(_ context.Context, name string, req backtest.Request) (*backtest.Result, error) {
			if name != "momentum" {
				return nil, core.ErrInvalidRequest
			}
			return &backtest.Result{Strategy: name, Symbol: req.Symbol, Interval: req.Interval, Bars: req.Limit}, nil
		},
	}

	srv, err := NewServer(Config{Host: "localhost", Port: 0, APIKey: apiKey}, deps, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return &testServer{srv: srv, trades: trades, bot: bot, key: apiKey}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if ts.key != "" {
		req.Header.Set("X-API-Key", ts.key)
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return w.Code, env
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, "test-key")

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 without a key on the health check, got %d", w.Code)
	}
}

func TestServer_APIAuth_Required(t *testing.T) {
	ts := newTestServer(t, "test-key")

	req := httptest.NewRequest("GET", "/api/trades/active", nil)
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}
}

func TestServer_APIAuth_ValidKey(t *testing.T) {
	ts := newTestServer(t, "test-key")

	code, env := ts.do(t, "GET", "/api/trades/active", "")
	if code != http.StatusOK || !env.Success {
		t.Errorf("expected 200 success with key, got %d %+v", code, env)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, "")

	code, _ := ts.do(t, "GET", "/api/bot/start", "")
	if code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", code)
	}
}

func TestServer_EmptyMatrix(t *testing.T) {
	ts := newTestServer(t, "")

	code, env := ts.do(t, "GET", "/api/signals/matrix", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if env.Message != "No data available yet" {
		t.Errorf("unexpected message %q", env.Message)
	}
}

func TestServer_UnknownSymbolDetails(t *testing.T) {
	ts := newTestServer(t, "")

	code, env := ts.do(t, "GET", "/api/signals/details/XRPUSDT", "")
	if code != http.StatusNotFound || env.Error.Code != "SYMBOL_NOT_FOUND" {
		t.Errorf("expected 404 SYMBOL_NOT_FOUND, got %d %s", code, env.Error.Code)
	}
}

func TestServer_VirtualTradeLifecycle(t *testing.T) {
	ts := newTestServer(t, "")

	code, env := ts.do(t, "POST", "/api/trades/virtual",
		`{"symbol":"btcusdt","side":"buy","price":50000,"quantity":0.1}`)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %+v", code, env)
	}
	var opened trade.Trade
	if err := json.Unmarshal(env.Data, &opened); err != nil {
		t.Fatalf("decode trade: %v", err)
	}
	if opened.Symbol != "BTCUSDT" || !opened.Virtual || opened.Strategy != "manual" {
		t.Errorf("unexpected trade %+v", opened)
	}

	code, env = ts.do(t, "GET", "/api/trades/virtual", "")
	var listed []trade.Trade
	if err := json.Unmarshal(env.Data, &listed); err != nil || code != http.StatusOK || len(listed) != 1 {
		t.Fatalf("expected one virtual trade, got %d %s", code, env.Data)
	}

	code, _ = ts.do(t, "POST", "/api/trades/modify/"+opened.ID, `{"stop_loss":49000}`)
	if code != http.StatusOK {
		t.Errorf("expected modify 200, got %d", code)
	}
	if got, _ := ts.trades.Get(opened.ID); got == nil || got.StopLoss != 49000 {
		t.Errorf("expected stop loss 49000, got %+v", got)
	}

	code, _ = ts.do(t, "POST", "/api/trades/close/"+opened.ID, "")
	if code != http.StatusOK {
		t.Errorf("expected close 200, got %d", code)
	}
	code, env = ts.do(t, "POST", "/api/trades/close/"+opened.ID, "")
	if code != http.StatusConflict || env.Error.Code != "TRADE_CLOSED" {
		t.Errorf("expected 409 TRADE_CLOSED, got %d %s", code, env.Error.Code)
	}
	code, _ = ts.do(t, "POST", "/api/trades/close/missing", "")
	if code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown trade, got %d", code)
	}
}

func TestServer_CloseAllPartialFailure(t *testing.T) {
	ts := newTestServer(t, "")

	code, env := ts.do(t, "POST", "/api/trades/close-all", "")
	if code != http.StatusOK || string(env.Data) == "" {
		t.Fatalf("expected 200 with nothing open, got %d", code)
	}
	var empty struct {
		Closed []trade.Trade `json:"closed"`
	}
	if err := json.Unmarshal(env.Data, &empty); err != nil || empty.Closed == nil {
		t.Errorf("expected an empty closed list, got %s", env.Data)
	}

	if _, err := ts.trades.OpenVirtual(context.Background(), trade.OpenRequest{Symbol: "BTCUSDT", Side: "BUY", Price: 100, Quantity: 1}); err != nil {
		t.Fatalf("OpenVirtual: %v", err)
	}
	// a real trade cannot close without an exchange
	payload, _ := json.Marshal(trade.Trade{
		ID: "real-1", Symbol: "ETHUSDT", Side: "BUY", EntryPrice: 50, CurrentPrice: 50,
		Quantity: 1, Status: trade.StatusOpen, CreatedAt: time.Now(),
	})
	if err := ts.trades.Restore(payload); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	ts.trades.Reconcile()

	code, env = ts.do(t, "POST", "/api/trades/close-all", "")
	if code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", code)
	}
	var partial struct {
		Closed []trade.Trade `json:"closed"`
		Count  int           `json:"count"`
		Error  struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(env.Data, &partial); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if partial.Count != 1 || len(partial.Closed) != 1 || partial.Closed[0].Symbol != "BTCUSDT" {
		t.Errorf("expected the virtual trade reported closed, got %s", env.Data)
	}
	if partial.Error.Code != "ORDER_FAILED" {
		t.Errorf("expected ORDER_FAILED detail, got %q", partial.Error.Code)
	}
	if len(ts.trades.Active()) != 1 {
		t.Errorf("real trade should stay open")
	}
}

func TestServer_InvalidBody(t *testing.T) {
	ts := newTestServer(t, "")

	code, env := ts.do(t, "POST", "/api/trades/virtual", `{bad`)
	if code != http.StatusBadRequest || env.Error.Code != "INVALID_REQUEST" {
		t.Errorf("expected 400 INVALID_REQUEST, got %d %s", code, env.Error.Code)
	}
}

func TestServer_BotStartStop(t *testing.T) {
	ts := newTestServer(t, "")

	code, env := ts.do(t, "POST", "/api/bot/start", "")
	if code != http.StatusOK || env.Message != "bot started" || !ts.bot.running {
		t.Fatalf("expected bot started, got %d %+v", code, env)
	}
	code, _ = ts.do(t, "POST", "/api/bot/start", "")
	if code != http.StatusConflict {
		t.Errorf("expected 409 when already running, got %d", code)
	}
	code, _ = ts.do(t, "POST", "/api/bot/stop", "")
	if code != http.StatusOK || ts.bot.running {
		t.Errorf("expected bot stopped, got %d", code)
	}
	code, _ = ts.do(t, "POST", "/api/bot/stop", "")
	if code != http.StatusConflict {
		t.Errorf("expected 409 when not running, got %d", code)
	}
}

func TestServer_TradingPairs(t *testing.T) {
	ts := newTestServer(t, "")

	code, env := ts.do(t, "POST", "/api/trading-pairs", `{"pair":"eth/usdt"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %+v", code, env)
	}
	var pairs []string
	json.Unmarshal(env.Data, &pairs)
	if len(pairs) != 2 || pairs[1] != "ETHUSDT" {
		t.Errorf("unexpected pairs %v", pairs)
	}

	code, _ = ts.do(t, "POST", "/api/trading-pairs", `{"pair":"ETHUSDT"}`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for a duplicate pair, got %d", code)
	}

	code, _ = ts.do(t, "DELETE", "/api/trading-pairs?pair=BTCUSDT", "")
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	code, _ = ts.do(t, "DELETE", "/api/trading-pairs", `{"pair":"BTCUSDT"}`)
	if code != http.StatusNotFound {
		t.Errorf("expected 404 removing an inactive pair, got %d", code)
	}
}

func TestServer_ConfigUpdate(t *testing.T) {
	ts := newTestServer(t, "")

	code, _ := ts.do(t, "POST", "/api/config/update", `{"key":"risk.max_positions","value":"8"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if got := ts.srv.deps.Settings.Get().Risk.MaxPositions; got != 8 {
		t.Errorf("expected max_positions 8, got %d", got)
	}

	code, _ = ts.do(t, "POST", "/api/config/update", `{"key":"nope","value":1}`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown key, got %d", code)
	}

	code, _ = ts.do(t, "POST", "/api/config/reset", "")
	if code != http.StatusOK || ts.srv.deps.Settings.Get().Risk.MaxPositions != 5 {
		t.Errorf("expected reset to defaults, got %d", code)
	}
}

func TestServer_NewsRoundTrip(t *testing.T) {
	ts := newTestServer(t, "")

	code, _ := ts.do(t, "POST", "/api/news", `{"title":"ETF approved","source":"wire","symbols":["btc"],"sentiment":0.8}`)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	code, env := ts.do(t, "GET", "/api/news/latest?symbol=btc", "")
	var items []feed.NewsItem
	json.Unmarshal(env.Data, &items)
	if code != http.StatusOK || len(items) != 1 || items[0].Symbols[0] != "BTC" {
		t.Errorf("unexpected news %d %s", code, env.Data)
	}

	code, _ = ts.do(t, "POST", "/api/news", `{"title":"","source":"wire"}`)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for an untitled item, got %d", code)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "test-key")

	ts.do(t, "GET", "/api/trades/active", "")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `path="GET /api/trades/active"`) {
		t.Error("expected request metric labeled by route pattern")
	}
}

func TestServer_Backtest(t *testing.T) {
	ts := newTestServer(t, "")

	code, env := ts.do(t, "GET", "/api/backtest/momentum/BTCUSDT?interval=4h&limit=200", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var res backtest.Result
	json.Unmarshal(env.Data, &res)
	if res.Symbol != "BTCUSDT" || res.Interval != "4h" || res.Bars != 200 {
		t.Errorf("unexpected request passed through: %+v", res)
	}

	code, _ = ts.do(t, "GET", "/api/backtest/whale_hunting/BTCUSDT", "")
	if code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}
