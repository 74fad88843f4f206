// Package sleeping_giants looks for quiet markets where volume and order flow
// start to build before a move.
package sleeping_giants

import (
	"fmt"
	"math"
	"strings"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/indicator"
	"github.com/newthinker/tradebot/internal/strategy"
)

const (
	minCandles     = 100
	volatilityBars = 24
	hoursPerYear   = 365 * 24
	maxHurstLag    = 100
	ofiThreshold   = 0.3
	vwapThreshold  = 0.02
	neutralHurst   = 0.5
)

// SleepingGiants scores low-volatility setups with a volume anomaly,
// persistent trend, order flow imbalance and VWAP deviation.
type SleepingGiants struct {
	volatilityThreshold    float64
	volumeAnomalyThreshold float64
	hurstThreshold         float64
	minConfidence          float64
}

// New creates the strategy with default thresholds.
func New() *SleepingGiants {
	return &SleepingGiants{
		volatilityThreshold:    0.02,
		volumeAnomalyThreshold: 3.0,
		hurstThreshold:         0.6,
		minConfidence:          0.7,
	}
}

func (s *SleepingGiants) Name() string {
	return "sleeping_giants"
}

func (s *SleepingGiants) Description() string {
	return "Sleeping giants: volume anomalies in quiet, persistent markets"
}

func (s *SleepingGiants) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		Candles:     minCandles,
		OrderBook:   true,
		BookHistory: true,
		Indicators:  []string{"hurst", "vwap", "ofi"},
	}
}

func (s *SleepingGiants) Init(cfg strategy.Config) error {
	p := cfg.Params
	s.volatilityThreshold = strategy.ParamFloat(p, "volatility_threshold", s.volatilityThreshold)
	s.volumeAnomalyThreshold = strategy.ParamFloat(p, "volume_anomaly_threshold", s.volumeAnomalyThreshold)
	s.hurstThreshold = strategy.ParamFloat(p, "hurst_threshold", s.hurstThreshold)
	s.minConfidence = strategy.ParamFloat(p, "min_confidence", s.minConfidence)
	return nil
}

// Metrics are the inputs of one evaluation.
type Metrics struct {
	Volatility    float64
	VolumeRatio   float64
	Hurst         float64
	OFI           float64
	VWAPDeviation float64
}

func (s *SleepingGiants) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if len(ctx.OHLCV) < minCandles {
		return nil, nil
	}

	closes := core.Closes(ctx.OHLCV)
	price := closes[len(closes)-1]
	if ctx.Quote != nil && ctx.Quote.Price > 0 {
		price = ctx.Quote.Price
	}

	m := Metrics{
		Volatility:    Volatility(closes[max(0, len(closes)-volatilityBars):]),
		VolumeRatio:   volumeRatio(ctx.OHLCV),
		Hurst:         Hurst(closes),
		OFI:           OrderFlowImbalance(ctx.OrderBook, ctx.PrevOrderBooks),
		VWAPDeviation: vwapDeviation(ctx.OHLCV, price),
	}

	action, confidence, reasons := s.score(m)
	if confidence < s.minConfidence || action == core.ActionNeutral {
		return nil, nil
	}

	return []core.Signal{{
		Symbol:      ctx.Symbol,
		Action:      action,
		Confidence:  min(confidence, 1.0),
		Price:       price,
		Reason:      "Sleeping giant: " + strings.Join(reasons, ", "),
		GeneratedAt: ctx.Now,
		Metadata: map[string]any{
			"volatility":           m.Volatility,
			"volume_anomaly_score": m.VolumeRatio,
			"hurst_exponent":       m.Hurst,
			"ofi_score":            m.OFI,
			"vwap_deviation":       m.VWAPDeviation,
		},
	}}, nil
}

func (s *SleepingGiants) score(m Metrics) (core.Action, float64, []string) {
	action := core.ActionNeutral
	var conf float64
	var reasons []string

	if m.VolumeRatio > s.volumeAnomalyThreshold {
		conf += 0.3
		reasons = append(reasons, fmt.Sprintf("volume %.1fx above normal", m.VolumeRatio))
	}
	if m.Hurst > s.hurstThreshold {
		conf += 0.2
		reasons = append(reasons, fmt.Sprintf("persistent trend (H=%.2f)", m.Hurst))
	}
	if math.Abs(m.OFI) > ofiThreshold {
		conf += 0.2
		if m.OFI > 0 {
			action = core.ActionBuy
			reasons = append(reasons, "buy pressure")
		} else {
			action = core.ActionSell
			reasons = append(reasons, "sell pressure")
		}
	}
	if math.Abs(m.VWAPDeviation) > vwapThreshold {
		conf += 0.15
		if m.VWAPDeviation < 0 {
			if action != core.ActionSell {
				action = core.ActionBuy
			}
			reasons = append(reasons, "price below VWAP")
		} else {
			if action != core.ActionBuy {
				action = core.ActionSell
			}
			reasons = append(reasons, "price above VWAP")
		}
	}
	if m.Volatility < s.volatilityThreshold*0.5 {
		conf += 0.15
		reasons = append(reasons, "extremely low volatility")
	}
	return action, conf, reasons
}

// Volatility is the annualised standard deviation of hourly log returns.
func Volatility(prices []float64) float64 {
	returns := indicator.LogReturns(prices)
	if len(returns) == 0 {
		return math.Inf(1)
	}
	return indicator.StdDev(returns) * math.Sqrt(hoursPerYear)
}

// Hurst estimates the Hurst exponent from the scaling of lagged differences.
// Returns 0.5 (random walk) when the series is too short or degenerate.
func Hurst(prices []float64) float64 {
	maxLag := min(maxHurstLag, len(prices)/2)
	if maxLag <= 2 {
		return neutralHurst
	}

	var xs, ys []float64
	for lag := 2; lag < maxLag; lag++ {
		diffs := make([]float64, len(prices)-lag)
		for i := range diffs {
			diffs[i] = prices[i+lag] - prices[i]
		}
		tau := math.Sqrt(indicator.StdDev(diffs))
		if tau <= 0 {
			continue
		}
		xs = append(xs, math.Log(float64(lag)))
		ys = append(ys, math.Log(tau))
	}
	if len(xs) < 2 {
		return neutralHurst
	}
	return slope(xs, ys) * 2
}

// slope is the least-squares slope of y on x.
func slope(xs, ys []float64) float64 {
	mx, my := indicator.Mean(xs), indicator.Mean(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		den += (xs[i] - mx) * (xs[i] - mx)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// OrderFlowImbalance averages (bid-ask)/(bid+ask) over the current and
// previous snapshots.
func OrderFlowImbalance(current *core.OrderBook, prev []strategy.BookSnapshot) float64 {
	books := make([]core.OrderBook, 0, len(prev)+1)
	for _, p := range prev {
		books = append(books, p.Book)
	}
	if current != nil {
		books = append(books, *current)
	}

	var total float64
	var n int
	for _, b := range books {
		bid, ask := b.TotalBidVolume(0), b.TotalAskVolume(0)
		if bid+ask == 0 {
			continue
		}
		total += (bid - ask) / (bid + ask)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// volumeRatio compares the last bar volume to the mean of the previous bars.
func volumeRatio(bars []core.OHLCV) float64 {
	if len(bars) < 2 {
		return 0
	}
	var sum float64
	for _, b := range bars[:len(bars)-1] {
		sum += b.Volume
	}
	mean := sum / float64(len(bars)-1)
	if mean == 0 {
		return 0
	}
	return bars[len(bars)-1].Volume / mean
}

func vwapDeviation(bars []core.OHLCV, price float64) float64 {
	var pv, v float64
	for _, b := range bars {
		pv += b.Close * b.Volume
		v += b.Volume
	}
	if v == 0 {
		return 0
	}
	vwap := pv / v
	if vwap == 0 {
		return 0
	}
	return (price - vwap) / vwap
}

// compile-time check
var _ strategy.Strategy = (*SleepingGiants)(nil)
