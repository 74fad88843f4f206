package notifier

import (
	"context"
	"time"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
)

// Notifier defines the interface for signal notification
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init applies the notifier's config section and validates it
	Init(cfg config.NotifierConfig) error

	// Send sends a single signal notification
	Send(ctx context.Context, signal core.Signal) error

	// SendBatch sends multiple signal notifications
	SendBatch(ctx context.Context, signals []core.Signal) error
}

// Alert is an operational alert raised by a rule on bot metrics.
type Alert struct {
	Name     string    `json:"name"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Metric   string    `json:"metric"`
	Value    float64   `json:"value"`
	FiredAt  time.Time `json:"fired_at"`
}

// Alerter is implemented by notifiers that can deliver operational alerts.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}
