// Package whale_hunting follows large on-chain flows to and from exchanges.
package whale_hunting

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/strategy"
)

// Reputation classifies a known address.
type Reputation string

const (
	ReputationUnknown     Reputation = "unknown"
	ReputationSmartMoney  Reputation = "smart_money"
	ReputationInstitution Reputation = "institution"
	ReputationExchange    Reputation = "exchange"
)

// Address is a tracked wallet with its confidence modifier.
type Address struct {
	Type     Reputation
	Modifier float64
}

const (
	defaultFlowThreshold  = 500_000.0
	defaultBaseConfidence = 0.7
	defaultMinUSDValue    = 100_000.0
	defaultLookback       = 7 * 24 * time.Hour
	defaultRecentWindow   = time.Hour
	maxConfidence         = 0.95
)

// WhaleHunting emits signals from exchange deposits, withdrawals and
// smart-money accumulation.
type WhaleHunting struct {
	flowThreshold  float64
	baseConfidence float64
	minUSDValue    float64
	lookback       time.Duration
	recentWindow   time.Duration

	mu        sync.RWMutex
	addresses map[string]Address
}

// New creates the strategy with default thresholds.
func New() *WhaleHunting {
	return &WhaleHunting{
		flowThreshold:  defaultFlowThreshold,
		baseConfidence: defaultBaseConfidence,
		minUSDValue:    defaultMinUSDValue,
		lookback:       defaultLookback,
		recentWindow:   defaultRecentWindow,
		addresses:      make(map[string]Address),
	}
}

func (w *WhaleHunting) Name() string {
	return "whale_hunting"
}

func (w *WhaleHunting) Description() string {
	return fmt.Sprintf("Whale flow tracking (threshold $%.0f)", w.flowThreshold)
}

func (w *WhaleHunting) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{WhaleFlows: true}
}

// Init reads thresholds and address lists. Params:
// exchange_flow_threshold, base_confidence, min_usd_value, lookback_days,
// smart_money, institutions, exchanges ([]string) and confidence_modifier.
func (w *WhaleHunting) Init(cfg strategy.Config) error {
	p := cfg.Params
	w.flowThreshold = strategy.ParamFloat(p, "exchange_flow_threshold", w.flowThreshold)
	w.baseConfidence = strategy.ParamFloat(p, "base_confidence", w.baseConfidence)
	w.minUSDValue = strategy.ParamFloat(p, "min_usd_value", w.minUSDValue)
	if days := strategy.ParamInt(p, "lookback_days", 0); days > 0 {
		w.lookback = time.Duration(days) * 24 * time.Hour
	}
	if mins := strategy.ParamInt(p, "recent_window_minutes", 0); mins > 0 {
		w.recentWindow = time.Duration(mins) * time.Minute
	}

	modifier := strategy.ParamFloat(p, "confidence_modifier", 1.0)
	for _, a := range strategy.ParamStrings(p, "smart_money") {
		w.SetAddress(a, Address{Type: ReputationSmartMoney, Modifier: modifier})
	}
	for _, a := range strategy.ParamStrings(p, "institutions") {
		w.SetAddress(a, Address{Type: ReputationInstitution, Modifier: modifier})
	}
	for _, a := range strategy.ParamStrings(p, "exchanges") {
		w.SetAddress(a, Address{Type: ReputationExchange, Modifier: 1.0})
	}

	if w.flowThreshold <= 0 {
		return fmt.Errorf("exchange_flow_threshold must be positive")
	}
	return nil
}

// SetAddress registers or replaces the reputation of an address.
func (w *WhaleHunting) SetAddress(address string, a Address) {
	if a.Modifier == 0 {
		a.Modifier = 1.0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addresses[strings.ToLower(address)] = a
}

func (w *WhaleHunting) reputation(address string) Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if a, ok := w.addresses[strings.ToLower(address)]; ok {
		return a
	}
	return Address{Type: ReputationUnknown, Modifier: 1.0}
}

func (w *WhaleHunting) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if len(ctx.WhaleTransactions) == 0 {
		return nil, nil
	}
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	var price float64
	if ctx.Quote != nil {
		price = ctx.Quote.Price
	}

	var signals []core.Signal
	for _, tx := range ctx.WhaleTransactions {
		if tx.Symbol != "" && tx.Symbol != ctx.Symbol {
			continue
		}
		if now.Sub(tx.Time) > w.recentWindow {
			continue
		}
		if sig, ok := w.analyzeTransaction(tx); ok {
			sig.Symbol = ctx.Symbol
			sig.Price = price
			sig.GeneratedAt = now
			signals = append(signals, sig)
		}
	}

	for _, sig := range w.accumulation(ctx.Symbol, ctx.WhaleTransactions, now) {
		sig.Price = price
		signals = append(signals, sig)
	}

	return signals, nil
}

func (w *WhaleHunting) analyzeTransaction(tx core.WhaleTransaction) (core.Signal, bool) {
	from := w.reputation(tx.From)
	to := w.reputation(tx.To)
	conf := w.baseConfidence

	meta := map[string]any{
		"tx_id":     tx.ID,
		"usd_value": tx.USDValue,
		"tx_type":   string(tx.Type),
	}

	switch {
	case tx.Type == core.WhaleExchangeDeposit && tx.USDValue >= w.flowThreshold:
		meta["pattern"] = "exchange_deposit"
		return core.Signal{
			Action:     core.ActionSell,
			Confidence: conf * 0.8,
			Reason:     fmt.Sprintf("Large exchange deposit $%.0f", tx.USDValue),
			Metadata:   meta,
		}, true

	case tx.Type == core.WhaleExchangeWithdrawal && tx.USDValue >= w.flowThreshold:
		if to.Type == ReputationSmartMoney {
			conf *= to.Modifier
		}
		meta["pattern"] = "exchange_withdrawal"
		return core.Signal{
			Action:     core.ActionBuy,
			Confidence: min(conf, maxConfidence),
			Reason:     fmt.Sprintf("Large exchange withdrawal $%.0f", tx.USDValue),
			Metadata:   meta,
		}, true

	case tx.Type == core.WhaleTransfer:
		if from.Type == ReputationSmartMoney && to.Type == ReputationExchange {
			meta["pattern"] = "smart_money_to_exchange"
			return core.Signal{
				Action:     core.ActionSell,
				Confidence: min(conf*from.Modifier, maxConfidence),
				Reason:     fmt.Sprintf("Smart money moving $%.0f to exchange", tx.USDValue),
				Metadata:   meta,
			}, true
		}
		if to.Type == ReputationSmartMoney {
			meta["pattern"] = "smart_money_accumulating"
			return core.Signal{
				Action:     core.ActionBuy,
				Confidence: min(conf*to.Modifier, maxConfidence),
				Reason:     fmt.Sprintf("Smart money accumulating $%.0f", tx.USDValue),
				Metadata:   meta,
			}, true
		}
	}
	return core.Signal{}, false
}

type bucket struct {
	total float64
	count int
}

// accumulation groups withdrawals and transfers per receiving address over
// the lookback window.
func (w *WhaleHunting) accumulation(symbol string, txs []core.WhaleTransaction, now time.Time) []core.Signal {
	buckets := make(map[string]*bucket)
	for _, tx := range txs {
		if tx.Symbol != "" && tx.Symbol != symbol {
			continue
		}
		if now.Sub(tx.Time) > w.lookback || tx.USDValue < w.minUSDValue {
			continue
		}
		if tx.Type != core.WhaleExchangeWithdrawal && tx.Type != core.WhaleTransfer {
			continue
		}
		key := strings.ToLower(tx.To)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.total += tx.USDValue
		b.count++
	}

	addrs := make([]string, 0, len(buckets))
	for a := range buckets {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	var signals []core.Signal
	for _, addr := range addrs {
		b := buckets[addr]
		if b.total < w.flowThreshold*2 {
			continue
		}
		rep := w.reputation(addr)
		if rep.Type != ReputationSmartMoney && rep.Type != ReputationInstitution {
			continue
		}
		conf := w.baseConfidence * rep.Modifier
		if b.count > 3 {
			conf *= 1.1
		}
		signals = append(signals, core.Signal{
			Symbol:      symbol,
			Action:      core.ActionBuy,
			Confidence:  min(conf, maxConfidence),
			Reason:      fmt.Sprintf("Accumulation: $%.0f over %d transactions", b.total, b.count),
			GeneratedAt: now,
			Metadata: map[string]any{
				"pattern":           "accumulation",
				"whale_address":     addr,
				"whale_type":        string(rep.Type),
				"total_accumulated": b.total,
				"transaction_count": b.count,
				"period_days":       int(w.lookback.Hours() / 24),
			},
		})
	}
	return signals
}
