// Package telegram sends signal alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/notifier"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// New creates a new Telegram notifier
func New(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  DefaultAPIBase,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithAPIBase points the notifier at another Bot API host.
func (t *Telegram) WithAPIBase(base string) *Telegram {
	t.apiBase = strings.TrimRight(base, "/")
	return t
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Init(cfg config.NotifierConfig) error {
	if cfg.BotToken != "" {
		t.botToken = cfg.BotToken
	}
	if cfg.ChatID != "" {
		t.chatID = cfg.ChatID
	}
	if cfg.URL != "" {
		t.apiBase = strings.TrimRight(cfg.URL, "/")
	}
	if t.apiBase == "" {
		t.apiBase = DefaultAPIBase
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}

	if t.botToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if t.chatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}

	return nil
}

func (t *Telegram) Send(ctx context.Context, signal core.Signal) error {
	return t.sendMessage(ctx, formatSignal(signal))
}

func (t *Telegram) SendBatch(ctx context.Context, signals []core.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *%d Trading Signals*\n\n", len(signals))

	for i, signal := range signals {
		sb.WriteString(formatSignal(signal))
		if i < len(signals)-1 {
			sb.WriteString("\n---\n\n")
		}
	}

	return t.sendMessage(ctx, sb.String())
}

func actionEmoji(a core.Action) string {
	switch a {
	case core.ActionStrongBuy:
		return "🚀"
	case core.ActionBuy:
		return "📈"
	case core.ActionSell:
		return "📉"
	case core.ActionStrongSell:
		return "🔻"
	default:
		return "⏸️"
	}
}

// Alert sends an operational alert.
func (t *Telegram) Alert(ctx context.Context, alert notifier.Alert) error {
	return t.sendMessage(ctx, formatAlert(alert))
}

func formatAlert(a notifier.Alert) string {
	return fmt.Sprintf("🚨 *%s* [%s]\n%s\n📈 %s = %.4g\n⏰ Time: %s",
		a.Name, strings.ToUpper(a.Severity), a.Message, a.Metric, a.Value,
		a.FiredAt.Format("2006-01-02 15:04:05"))
}

func formatSignal(signal core.Signal) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s *%s* - %s\n", actionEmoji(signal.Action), signal.Symbol, signal.Action)
	fmt.Fprintf(&sb, "📊 Confidence: %.1f%%\n", signal.Confidence*100)

	if signal.Strategy != "" {
		fmt.Fprintf(&sb, "🎯 Strategy: %s\n", signal.Strategy)
	}
	if signal.Reason != "" {
		fmt.Fprintf(&sb, "💡 Reason: %s\n", signal.Reason)
	}
	if signal.Price > 0 {
		fmt.Fprintf(&sb, "💰 Price: $%.2f\n", signal.Price)
	}
	if signal.StopLoss > 0 {
		fmt.Fprintf(&sb, "🛑 Stop loss: $%.2f\n", signal.StopLoss)
	}
	if signal.TakeProfit > 0 {
		fmt.Fprintf(&sb, "🎯 Take profit: $%.2f\n", signal.TakeProfit)
	}

	fmt.Fprintf(&sb, "⏰ Time: %s", signal.GeneratedAt.Format("2006-01-02 15:04:05"))

	return sb.String()
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
