// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/notifier"
)

// Webhook implements the Notifier interface for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Init(cfg config.NotifierConfig) error {
	if cfg.URL != "" {
		w.url = cfg.URL
	}
	if len(cfg.Headers) > 0 {
		w.headers = cfg.Headers
	}

	if w.url == "" {
		return fmt.Errorf("webhook: url is required")
	}

	if w.client == nil {
		w.client = &http.Client{Timeout: 30 * time.Second}
	}

	return nil
}

func (w *Webhook) Send(ctx context.Context, signal core.Signal) error {
	return w.post(ctx, payload(signal))
}

func (w *Webhook) SendBatch(ctx context.Context, signals []core.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	payloads := make([]map[string]any, len(signals))
	for i, sig := range signals {
		payloads[i] = payload(sig)
	}

	return w.post(ctx, map[string]any{
		"type":    "batch",
		"count":   len(signals),
		"signals": payloads,
	})
}

// Alert posts an operational alert.
func (w *Webhook) Alert(ctx context.Context, alert notifier.Alert) error {
	return w.post(ctx, map[string]any{
		"type":     "alert",
		"name":     alert.Name,
		"severity": alert.Severity,
		"message":  alert.Message,
		"metric":   alert.Metric,
		"value":    alert.Value,
		"fired_at": alert.FiredAt.Format(time.RFC3339),
	})
}

func payload(signal core.Signal) map[string]any {
	return map[string]any{
		"type":         "signal",
		"id":           signal.ID,
		"symbol":       signal.Symbol,
		"action":       signal.Action,
		"confidence":   signal.Confidence,
		"price":        signal.Price,
		"stop_loss":    signal.StopLoss,
		"take_profit":  signal.TakeProfit,
		"reason":       signal.Reason,
		"strategy":     signal.Strategy,
		"metadata":     signal.Metadata,
		"generated_at": signal.GeneratedAt.Format(time.RFC3339),
	}
}

func (w *Webhook) post(ctx context.Context, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
