// Package aggregator combines per-strategy signals into one weighted decision per symbol.
package aggregator

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/indicator"
	"go.uber.org/zap"
)

// StrategyName is stamped on aggregated signals.
const StrategyName = "aggregator"

// DefaultWindow is how long a strategy signal stays eligible for aggregation.
const DefaultWindow = 60 * time.Second

// Profile weighs one strategy's votes.
type Profile struct {
	Weight        float64 `json:"weight"`
	Reliability   float64 `json:"reliability"`
	MinConfidence float64 `json:"min_confidence"`
	Priority      int     `json:"priority"`
}

// FallbackProfile applies to strategies without a profile.
var FallbackProfile = Profile{Weight: 1.0, Reliability: 0.5, MinConfidence: 0.3, Priority: 5}

// DefaultProfiles returns the built-in profiles for the shipped strategies.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"whale_hunting":       {Weight: 1.5, Reliability: 0.75, MinConfidence: 0.3, Priority: 8},
		"sleeping_giants":     {Weight: 1.2, Reliability: 0.8, MinConfidence: 0.4, Priority: 7},
		"order_book_analysis": {Weight: 1.0, Reliability: 0.7, MinConfidence: 0.35, Priority: 6},
		"momentum":            {Weight: 0.8, Reliability: 0.65, MinConfidence: 0.4, Priority: 5},
		"multi_indicator":     {Weight: 1.0, Reliability: 0.7, MinConfidence: 0.65, Priority: 6},
	}
}

// Contribution describes how much one strategy moved the aggregate.
type Contribution struct {
	Strategy   string      `json:"strategy"`
	Action     core.Action `json:"signal_type"`
	Confidence float64     `json:"confidence"`
	Weight     float64     `json:"weight"`
	Reason     string      `json:"reason"`
}

// Aggregator merges strategy signals using weighted voting.
type Aggregator struct {
	mu           sync.RWMutex
	profiles     map[string]Profile
	window       time.Duration
	neutralFloor float64
	logger       *zap.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNeutralFloor sets the confidence below which NEUTRAL results are dropped.
func WithNeutralFloor(v float64) Option {
	return func(a *Aggregator) { a.neutralFloor = v }
}

// New creates an aggregator. Missing profiles fall back to DefaultProfiles.
func New(profiles map[string]Profile, window time.Duration, logger *zap.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	merged := DefaultProfiles()
	for name, p := range profiles {
		merged[name] = p
	}
	a := &Aggregator{
		profiles:     merged,
		window:       window,
		neutralFloor: 0.4,
		logger:       logger.Named("aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Profile returns the profile used for a strategy.
func (a *Aggregator) Profile(strategy string) Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if p, ok := a.profiles[strategy]; ok {
		return p
	}
	return FallbackProfile
}

// Profiles returns a copy of all configured profiles.
func (a *Aggregator) Profiles() map[string]Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Profile, len(a.profiles))
	for k, v := range a.profiles {
		out[k] = v
	}
	return out
}

// SetProfile replaces one strategy profile.
func (a *Aggregator) SetProfile(strategy string, p Profile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profiles[strategy] = p
}

// SetWeights overrides only the weight of the named strategies.
func (a *Aggregator) SetWeights(weights map[string]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, w := range weights {
		if w < 0 {
			continue
		}
		p, ok := a.profiles[name]
		if !ok {
			p = FallbackProfile
		}
		p.Weight = w
		a.profiles[name] = p
	}
}

// Window returns the aggregation window.
func (a *Aggregator) Window() time.Duration {
	return a.window
}

type vote struct {
	signal   core.Signal
	weight   float64
	priority int
}

// Aggregate folds the signals of one symbol into a single signal.
// It returns false when no signal survives filtering or the result is a weak NEUTRAL.
func (a *Aggregator) Aggregate(symbol string, signals []core.Signal, now time.Time) (*core.Signal, bool) {
	var (
		buyCount, sellCount, neutralCount int
		weightedBuy, weightedSell, total  float64
		confidences                       []float64
		best                              *core.Signal
	)
	byStrategy := make(map[string]vote)

	for i := range signals {
		sig := signals[i]
		if sig.Symbol != "" && sig.Symbol != symbol {
			continue
		}
		if !sig.GeneratedAt.IsZero() && now.Sub(sig.GeneratedAt) > a.window {
			continue
		}

		switch {
		case sig.Action.IsBuy():
			buyCount++
		case sig.Action.IsSell():
			sellCount++
		default:
			neutralCount++
		}
		confidences = append(confidences, sig.Confidence)
		if best == nil || sig.Confidence > best.Confidence {
			best = &signals[i]
		}

		p := a.Profile(sig.Strategy)
		if sig.Confidence < p.MinConfidence {
			continue
		}
		w := p.Weight * p.Reliability * sig.Confidence
		switch {
		case sig.Action.IsBuy():
			weightedBuy += w
		case sig.Action.IsSell():
			weightedSell += w
		}
		total += w

		// One vote per strategy for consensus; keep its heaviest signal.
		if prev, ok := byStrategy[sig.Strategy]; !ok || w > prev.weight {
			byStrategy[sig.Strategy] = vote{signal: sig, weight: w, priority: p.Priority}
		}
	}

	if total == 0 || len(byStrategy) == 0 {
		return nil, false
	}

	buyShare := weightedBuy / total
	sellShare := weightedSell / total
	action, confidence := decide(buyShare, sellShare, byStrategy)

	if action == core.ActionNeutral && confidence < a.neutralFloor {
		a.logger.Debug("weak neutral aggregate dropped",
			zap.String("symbol", symbol),
			zap.Float64("confidence", confidence),
		)
		return nil, false
	}

	contributions := make([]Contribution, 0, len(byStrategy))
	names := make([]string, 0, len(byStrategy))
	for name, v := range byStrategy {
		contributions = append(contributions, Contribution{
			Strategy:   name,
			Action:     v.signal.Action,
			Confidence: v.signal.Confidence,
			Weight:     v.weight,
			Reason:     v.signal.Reason,
		})
		names = append(names, name)
	}
	slices.SortFunc(contributions, func(x, y Contribution) int {
		switch {
		case x.Weight > y.Weight:
			return -1
		case x.Weight < y.Weight:
			return 1
		}
		return strings.Compare(x.Strategy, y.Strategy)
	})
	slices.Sort(names)

	out := &core.Signal{
		Symbol:      symbol,
		Action:      action,
		Confidence:  confidence,
		Strategy:    StrategyName,
		GeneratedAt: now,
		Reason: fmt.Sprintf("%d strategies (%s): buy %.2f / sell %.2f",
			len(byStrategy), strings.Join(names, ", "), buyShare, sellShare),
		Metadata: map[string]any{
			"total_signals":           len(confidences),
			"buy_signals":             buyCount,
			"sell_signals":            sellCount,
			"neutral_signals":         neutralCount,
			"buy_weight":              buyShare,
			"sell_weight":             sellShare,
			"contributing_strategies": names,
			"strategy_contributions":  contributions,
			"average_confidence":      indicator.Mean(confidences),
			"confidence_std":          indicator.StdDev(confidences),
			"window_seconds":          a.window.Seconds(),
		},
	}
	if best != nil {
		out.Price = best.Price
		if best.Action.Direction() == action.Direction() {
			out.StopLoss = best.StopLoss
			out.TakeProfit = best.TakeProfit
		}
	}
	return out, true
}

func decide(buyShare, sellShare float64, votes map[string]vote) (core.Action, float64) {
	diff := buyShare - sellShare
	confidence := math.Abs(diff)

	if len(votes) > 1 {
		var buys, sells int
		for _, v := range votes {
			switch {
			case v.signal.Action.IsBuy():
				buys++
			case v.signal.Action.IsSell():
				sells++
			}
		}
		consensus := float64(max(buys, sells)) / float64(len(votes))
		confidence *= 0.5 + consensus*0.5
	}

	maxPriority := 0
	for _, v := range votes {
		maxPriority = max(maxPriority, v.priority)
	}
	confidence = math.Min(confidence*(0.5+float64(maxPriority)/10*0.5), 1.0)

	switch {
	case diff > 0.6 && confidence > 0.7:
		return core.ActionStrongBuy, confidence
	case diff > 0.3:
		return core.ActionBuy, confidence
	case diff < -0.6 && confidence > 0.7:
		return core.ActionStrongSell, confidence
	case diff < -0.3:
		return core.ActionSell, confidence
	default:
		return core.ActionNeutral, confidence
	}
}

// Vote is one strategy's current opinion in the signal matrix.
type Vote struct {
	Strategy   string
	Action     core.Action
	Confidence float64
}

// Summary is the matrix-level verdict over a set of votes.
type Summary struct {
	Action     core.Action `json:"action"`
	Confidence float64     `json:"confidence"`
	BuyScore   float64     `json:"buy_score"`
	SellScore  float64     `json:"sell_score"`
}

// Summarize scores matrix votes without priority or consensus scaling.
func (a *Aggregator) Summarize(votes []Vote) Summary {
	var buyWeight, sellWeight, total float64
	for _, v := range votes {
		p := a.Profile(v.Strategy)
		if v.Confidence < p.MinConfidence {
			continue
		}
		w := p.Weight * p.Reliability
		switch {
		case v.Action.IsBuy():
			buyWeight += w * v.Confidence
		case v.Action.IsSell():
			sellWeight += w * v.Confidence
		}
		total += w
	}
	if total == 0 {
		return Summary{Action: core.ActionNeutral}
	}

	buy := buyWeight / total
	sell := sellWeight / total
	s := Summary{BuyScore: buy, SellScore: sell}
	switch {
	case buy > sell && buy > 0.5:
		s.Action, s.Confidence = core.ActionBuy, buy
		if buy > 0.7 {
			s.Action = core.ActionStrongBuy
		}
	case sell > buy && sell > 0.5:
		s.Action, s.Confidence = core.ActionSell, sell
		if sell > 0.7 {
			s.Action = core.ActionStrongSell
		}
	default:
		s.Action, s.Confidence = core.ActionNeutral, math.Max(buy, sell)
	}
	return s
}
