package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/notifier"
)

func TestTelegram_ImplementsNotifier(t *testing.T) {
	var _ notifier.Notifier = (*Telegram)(nil)
}

func TestTelegram_Init(t *testing.T) {
	tg := &Telegram{}

	err := tg.Init(config.NotifierConfig{BotToken: "test-token", ChatID: "test-chat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tg.botToken != "test-token" {
		t.Errorf("expected bot_token 'test-token', got '%s'", tg.botToken)
	}
	if tg.chatID != "test-chat" {
		t.Errorf("expected chat_id 'test-chat', got '%s'", tg.chatID)
	}
	if tg.apiBase != DefaultAPIBase {
		t.Errorf("expected default api base, got %s", tg.apiBase)
	}
}

func TestTelegram_Init_Missing(t *testing.T) {
	if err := (&Telegram{}).Init(config.NotifierConfig{ChatID: "c"}); err == nil {
		t.Error("expected error for missing bot_token")
	}
	if err := (&Telegram{}).Init(config.NotifierConfig{BotToken: "t"}); err == nil {
		t.Error("expected error for missing chat_id")
	}
}

func TestTelegram_Send(t *testing.T) {
	var path string
	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	tg := New("test-token", "test-chat").WithAPIBase(server.URL)

	err := tg.Send(context.Background(), core.Signal{
		Symbol:      "BTCUSDT",
		Action:      core.ActionStrongBuy,
		Confidence:  0.85,
		Strategy:    "aggregator",
		Price:       50000,
		GeneratedAt: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/bottest-token/sendMessage" {
		t.Errorf("unexpected path %s", path)
	}
	if payload["chat_id"] != "test-chat" {
		t.Errorf("expected chat_id test-chat, got %v", payload["chat_id"])
	}
	text, _ := payload["text"].(string)
	if !strings.Contains(text, "BTCUSDT") || !strings.Contains(text, "STRONG_BUY") {
		t.Errorf("unexpected text %q", text)
	}
}

func TestTelegram_Send_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Unauthorized"})
	}))
	defer server.Close()

	tg := New("bad", "chat").WithAPIBase(server.URL)
	if err := tg.Send(context.Background(), core.Signal{Symbol: "BTCUSDT"}); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestFormatSignal(t *testing.T) {
	formatted := formatSignal(core.Signal{
		Symbol:      "ETHUSDT",
		Action:      core.ActionSell,
		Confidence:  0.75,
		Strategy:    "momentum",
		Reason:      "RSI overbought",
		Price:       3000.5,
		StopLoss:    3060,
		TakeProfit:  2880,
		GeneratedAt: time.Now(),
	})

	for _, want := range []string{"📉", "ETHUSDT", "SELL", "75.0%", "momentum", "RSI overbought", "3000.50", "3060.00", "2880.00"} {
		if !strings.Contains(formatted, want) {
			t.Errorf("formatted message should contain %q:\n%s", want, formatted)
		}
	}
}

func TestFormatSignal_Emoji(t *testing.T) {
	tests := []struct {
		action core.Action
		want   string
	}{
		{core.ActionStrongBuy, "🚀"},
		{core.ActionBuy, "📈"},
		{core.ActionStrongSell, "🔻"},
		{core.ActionNeutral, "⏸️"},
	}
	for _, tt := range tests {
		if got := formatSignal(core.Signal{Action: tt.action}); !strings.HasPrefix(got, tt.want) {
			t.Errorf("%s: expected prefix %s, got %q", tt.action, tt.want, got)
		}
	}
}

func TestTelegram_SendBatch(t *testing.T) {
	var text string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		text, _ = payload["text"].(string)
	}))
	defer server.Close()

	tg := New("token", "chat").WithAPIBase(server.URL)

	if err := tg.SendBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch should not return error: %v", err)
	}
	if text != "" {
		t.Error("empty batch must not send a message")
	}

	signals := []core.Signal{
		{Symbol: "BTCUSDT", Action: core.ActionBuy, Confidence: 0.8, GeneratedAt: time.Now()},
		{Symbol: "SOLUSDT", Action: core.ActionSell, Confidence: 0.7, GeneratedAt: time.Now()},
	}
	if err := tg.SendBatch(context.Background(), signals); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "2 Trading Signals") || !strings.Contains(text, "SOLUSDT") {
		t.Errorf("unexpected batch text %q", text)
	}
}

func TestFormatAlert(t *testing.T) {
	msg := formatAlert(notifier.Alert{
		Name: "drawdown", Severity: "warning", Message: "equity down",
		Metric: "drawdown_pct", Value: 12.5,
		FiredAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	for _, want := range []string{"*drawdown*", "[WARNING]", "equity down", "drawdown_pct = 12.5", "2026-05-01 08:00:00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}
