package alert

import (
	"context"
	"sync"
	"time"

	"github.com/newthinker/tradebot/internal/notifier"
	"go.uber.org/zap"
)

// Sink delivers fired alerts; notifier.Registry is one.
type Sink interface {
	AlertAll(ctx context.Context, alert notifier.Alert) map[string]error
}

// Evaluator evaluates alert rules and sends notifications.
type Evaluator struct {
	rules    []Rule
	sink     Sink
	logger   *zap.Logger
	metrics  map[string]float64
	cooldown time.Duration

	// Track pending alerts (waiting for "for" duration)
	pending map[string]time.Time
	// Track last fired time for cooldown
	lastFired map[string]time.Time

	now func() time.Time

	mu sync.Mutex
}

// NewEvaluator creates an evaluator for rules. sink may be nil, in which
// case fired alerts are only logged.
func NewEvaluator(rules []Rule, sink Sink, cooldown time.Duration, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		rules:     rules,
		sink:      sink,
		logger:    logger.Named("alert"),
		metrics:   make(map[string]float64),
		cooldown:  cooldown,
		pending:   make(map[string]time.Time),
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Len returns the number of rules.
func (e *Evaluator) Len() int { return len(e.rules) }

// SetMetrics updates the current metrics.
func (e *Evaluator) SetMetrics(metrics map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = metrics
}

// check decides whether rule fires now and records the transition.
func (e *Evaluator) check(rule Rule, now time.Time) bool {
	if !rule.Evaluate(e.metrics) {
		delete(e.pending, rule.Name)
		return false
	}

	if rule.For > 0 {
		pendingSince, isPending := e.pending[rule.Name]
		if !isPending {
			e.pending[rule.Name] = now
			return false
		}
		if now.Sub(pendingSince) < rule.For {
			return false
		}
	}

	if last, fired := e.lastFired[rule.Name]; fired && now.Sub(last) < e.cooldown {
		return false
	}

	e.lastFired[rule.Name] = now
	delete(e.pending, rule.Name)
	return true
}

// EvaluateAll evaluates every rule against the current metrics, delivers the
// ones that fire and returns them.
func (e *Evaluator) EvaluateAll(ctx context.Context) []notifier.Alert {
	e.mu.Lock()
	now := e.now()
	var fired []notifier.Alert
	for _, rule := range e.rules {
		if !e.check(rule, now) {
			continue
		}
		fired = append(fired, notifier.Alert{
			Name:     rule.Name,
			Severity: rule.Severity,
			Message:  rule.FormatMessage(e.metrics),
			Metric:   rule.Metric(),
			Value:    e.metrics[rule.Metric()],
			FiredAt:  now,
		})
	}
	e.mu.Unlock()

	for _, a := range fired {
		e.logger.Warn("alert fired",
			zap.String("name", a.Name),
			zap.String("severity", a.Severity),
			zap.String("metric", a.Metric),
			zap.Float64("value", a.Value))
		if e.sink == nil {
			continue
		}
		for name, err := range e.sink.AlertAll(ctx, a) {
			e.logger.Warn("alert delivery failed", zap.String("notifier", name), zap.Error(err))
		}
	}
	return fired
}
