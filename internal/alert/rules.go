// Package alert evaluates "metric op value" rules against bot metrics and
// delivers the ones that fire through the notifiers.
package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
)

// Metrics the bot publishes after every analysis cycle.
const (
	MetricOpenPositions = "open_positions"
	MetricEquity        = "equity"
	MetricAvailable     = "available"
	MetricUnrealizedPnL = "unrealized_pnl"
	MetricRealizedPnL   = "realized_pnl"
	MetricDrawdownPct   = "drawdown_pct"
	MetricFailedPairs   = "failed_pairs"
	MetricCycleSeconds  = "cycle_seconds"
)

var exprPattern = regexp.MustCompile(`^(\w+)\s*(>=|<=|==|!=|>|<)\s*(-?[\d.]+)$`)

// Rule defines an alert rule.
type Rule struct {
	Name     string
	Expr     string
	For      time.Duration
	Severity string
	Message  string

	metric    string
	op        string
	threshold float64
}

// Parse compiles the rule expression.
func (r *Rule) Parse() error {
	matches := exprPattern.FindStringSubmatch(strings.TrimSpace(r.Expr))
	if len(matches) != 4 {
		return fmt.Errorf("alert %s: expression %q is not \"metric op value\"", r.Name, r.Expr)
	}
	threshold, err := strconv.ParseFloat(matches[3], 64)
	if err != nil {
		return fmt.Errorf("alert %s: threshold: %w", r.Name, err)
	}
	r.metric, r.op, r.threshold = matches[1], matches[2], threshold
	return nil
}

// Metric returns the metric the rule watches. Parse must have succeeded.
func (r *Rule) Metric() string { return r.metric }

// Evaluate evaluates the rule expression against metrics.
func (r *Rule) Evaluate(metrics map[string]float64) bool {
	if r.op == "" && r.Parse() != nil {
		return false
	}

	value, exists := metrics[r.metric]
	if !exists {
		return false
	}

	switch r.op {
	case ">":
		return value > r.threshold
	case "<":
		return value < r.threshold
	case ">=":
		return value >= r.threshold
	case "<=":
		return value <= r.threshold
	case "==":
		return value == r.threshold
	case "!=":
		return value != r.threshold
	default:
		return false
	}
}

// FormatMessage formats the alert message with the metric value.
func (r *Rule) FormatMessage(metrics map[string]float64) string {
	msg := r.Message
	if msg == "" {
		msg = r.Expr
	}
	return fmt.Sprintf("[%s] %s: %s (%s = %.4g)", strings.ToUpper(r.Severity), r.Name, msg, r.metric, metrics[r.metric])
}

// FromConfig compiles configured rules. A malformed rule is a config error.
func FromConfig(cfgs []config.AlertRuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for _, c := range cfgs {
		r := Rule{Name: c.Name, Expr: c.Expr, For: c.For, Severity: c.Severity, Message: c.Message}
		if r.Name == "" {
			return nil, core.Errorf(core.ErrConfigInvalid, "alert rule %q needs a name", c.Expr)
		}
		if seen[r.Name] {
			return nil, core.Errorf(core.ErrConfigInvalid, "duplicate alert rule %s", r.Name)
		}
		seen[r.Name] = true
		if r.Severity == "" {
			r.Severity = "warning"
		}
		if err := r.Parse(); err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
