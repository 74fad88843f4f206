// Package multi_indicator votes across seven classic indicators and signals
// when enough of them agree on a direction.
package multi_indicator

import (
	"fmt"
	"math"
	"strings"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/indicator"
	"github.com/newthinker/tradebot/internal/strategy"
)

const (
	minCandles = 20

	rsiPeriod     = 14
	rsiOversold   = 30.0
	rsiOverbought = 70.0

	stochOversold   = 20.0
	stochOverbought = 80.0

	adxPeriod    = 14
	adxThreshold = 25.0
	adxMinBars   = 30

	bbPeriod   = 20
	bbStdDev   = 2.0
	bbLow      = 0.2
	bbHigh     = 0.8
	volumeBars = 20

	volumeThreshold = 1.5
	atrPeriod       = 14

	// confidence is the winning score over this, capped at 1
	scoreScale = 5.0
)

// MultiIndicator combines RSI, MACD, Bollinger %B, EMA alignment, ADX,
// volume and the stochastic oscillator.
type MultiIndicator struct {
	minConfidence float64
	minConfirm    int
	slATR         float64
	tpATR         float64
}

// New creates the strategy with a 0.65 confidence floor and three confirmations.
func New() *MultiIndicator {
	return &MultiIndicator{
		minConfidence: 0.65,
		minConfirm:    3,
		slATR:         2,
		tpATR:         3,
	}
}

func (m *MultiIndicator) Name() string {
	return "multi_indicator"
}

func (m *MultiIndicator) Description() string {
	return fmt.Sprintf("Multi-indicator vote (%d confirmations, confidence %.2f)", m.minConfirm, m.minConfidence)
}

func (m *MultiIndicator) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		Candles:    200,
		Indicators: []string{"RSI", "MACD", "BB", "EMA", "ADX", "ATR", "STOCH"},
	}
}

func (m *MultiIndicator) Init(cfg strategy.Config) error {
	p := cfg.Params
	m.minConfidence = strategy.ParamFloat(p, "min_confidence", m.minConfidence)
	m.minConfirm = strategy.ParamInt(p, "min_indicators_confirm", m.minConfirm)
	m.slATR = strategy.ParamFloat(p, "stop_loss_atr", m.slATR)
	m.tpATR = strategy.ParamFloat(p, "take_profit_atr", m.tpATR)
	if m.minConfirm < 1 {
		return fmt.Errorf("min_indicators_confirm must be at least 1, got %d", m.minConfirm)
	}
	if m.minConfidence < 0 || m.minConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0, 1], got %f", m.minConfidence)
	}
	return nil
}

// Indicators are the latest readings a decision is based on.
type Indicators struct {
	Price       float64
	RSI         float64
	MACD        float64
	MACDSignal  float64
	PercentB    float64
	ATR         float64
	ADX         float64
	PlusDI      float64
	MinusDI     float64
	VolumeRatio float64
	StochK      float64
	StochD      float64
	EMAs        []float64 // shortest period first
}

// Vote is one indicator's opinion.
type Vote struct {
	Name   string
	Action core.Action
	Weight float64
	Desc   string
}

// Decision is the tally of all votes.
type Decision struct {
	Action     core.Action
	Confidence float64
	BuyScore   float64
	SellScore  float64
	BuyCount   int
	SellCount  int
	Votes      []Vote // votes for Action
}

func (m *MultiIndicator) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if len(ctx.OHLCV) < minCandles {
		return nil, nil
	}

	ind := compute(ctx.OHLCV)
	d := m.decide(Votes(ind))
	if d.Action == core.ActionNeutral {
		return nil, nil
	}

	dir := float64(d.Action.Direction())
	descs := make([]string, len(d.Votes))
	for i, v := range d.Votes {
		descs[i] = v.Name + ": " + v.Desc
	}

	return []core.Signal{{
		Symbol:      ctx.Symbol,
		Action:      d.Action,
		Confidence:  d.Confidence,
		Price:       ind.Price,
		StopLoss:    ind.Price - dir*m.slATR*ind.ATR,
		TakeProfit:  ind.Price + dir*m.tpATR*ind.ATR,
		Reason:      fmt.Sprintf("%s: %s", d.Action, strings.Join(descs, "; ")),
		GeneratedAt: ctx.Now,
		Metadata: map[string]any{
			"buy_score":    d.BuyScore,
			"sell_score":   d.SellScore,
			"buy_count":    d.BuyCount,
			"sell_count":   d.SellCount,
			"rsi":          ind.RSI,
			"adx":          ind.ADX,
			"percent_b":    ind.PercentB,
			"stoch_k":      ind.StochK,
			"atr":          ind.ATR,
			"volume_ratio": ind.VolumeRatio,
		},
	}}, nil
}

// decide picks the side with enough confirmations and the higher score.
func (m *MultiIndicator) decide(votes []Vote) Decision {
	var d Decision
	var buys, sells []Vote
	for _, v := range votes {
		switch v.Action {
		case core.ActionBuy:
			d.BuyScore += v.Weight
			buys = append(buys, v)
		case core.ActionSell:
			d.SellScore += v.Weight
			sells = append(sells, v)
		}
	}
	d.BuyCount, d.SellCount = len(buys), len(sells)
	d.Action = core.ActionNeutral

	switch {
	case d.BuyCount >= m.minConfirm && d.BuyScore > d.SellScore:
		d.Confidence = math.Min(d.BuyScore/scoreScale, 1)
		if d.Confidence >= m.minConfidence {
			d.Action, d.Votes = core.ActionBuy, buys
		}
	case d.SellCount >= m.minConfirm && d.SellScore > d.BuyScore:
		d.Confidence = math.Min(d.SellScore/scoreScale, 1)
		if d.Confidence >= m.minConfidence {
			d.Action, d.Votes = core.ActionSell, sells
		}
	}
	return d
}

// Votes turns indicator readings into directional opinions. Volume is
// reported but never takes a side.
func Votes(ind Indicators) []Vote {
	var out []Vote
	add := func(name string, action core.Action, weight float64, desc string) {
		out = append(out, Vote{Name: name, Action: action, Weight: weight, Desc: desc})
	}

	switch {
	case ind.RSI < rsiOversold:
		add("RSI", core.ActionBuy, 0.8, fmt.Sprintf("oversold %.1f", ind.RSI))
	case ind.RSI > rsiOverbought:
		add("RSI", core.ActionSell, 0.8, fmt.Sprintf("overbought %.1f", ind.RSI))
	}

	switch {
	case ind.MACD > ind.MACDSignal:
		add("MACD", core.ActionBuy, 0.7, "bullish crossover")
	case ind.MACD < ind.MACDSignal:
		add("MACD", core.ActionSell, 0.7, "bearish crossover")
	}

	switch {
	case ind.PercentB < bbLow:
		add("BB", core.ActionBuy, 0.6, fmt.Sprintf("near lower band %.2f", ind.PercentB))
	case ind.PercentB > bbHigh:
		add("BB", core.ActionSell, 0.6, fmt.Sprintf("near upper band %.2f", ind.PercentB))
	}

	if len(ind.EMAs) >= 2 {
		switch {
		case descending(ind.EMAs) && ind.Price > ind.EMAs[0]:
			add("EMA", core.ActionBuy, 0.7, "bullish alignment")
		case ascending(ind.EMAs) && ind.Price < ind.EMAs[0]:
			add("EMA", core.ActionSell, 0.7, "bearish alignment")
		}
	}

	if ind.ADX > adxThreshold {
		if ind.PlusDI > ind.MinusDI {
			add("ADX", core.ActionBuy, 0.6, fmt.Sprintf("strong uptrend %.1f", ind.ADX))
		} else {
			add("ADX", core.ActionSell, 0.6, fmt.Sprintf("strong downtrend %.1f", ind.ADX))
		}
	}

	if ind.VolumeRatio > volumeThreshold {
		add("Volume", core.ActionNeutral, 0.5, fmt.Sprintf("high volume %.1fx", ind.VolumeRatio))
	}

	switch {
	case ind.StochK < stochOversold && ind.StochK > ind.StochD:
		add("Stochastic", core.ActionBuy, 0.6, fmt.Sprintf("oversold cross %.1f", ind.StochK))
	case ind.StochK > stochOverbought && ind.StochK < ind.StochD:
		add("Stochastic", core.ActionSell, 0.6, fmt.Sprintf("overbought cross %.1f", ind.StochK))
	}
	return out
}

// compute reads every indicator, substituting neutral values where the
// history is too short.
func compute(bars []core.OHLCV) Indicators {
	n := len(bars)
	closes := core.Closes(bars)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		highs[i], lows[i] = b.High, b.Low
	}
	price := closes[n-1]

	ind := Indicators{
		Price:       price,
		RSI:         50,
		PercentB:    0.5,
		ATR:         price * 0.02,
		ADX:         25,
		VolumeRatio: 1,
		StochK:      50,
		StochD:      50,
		EMAs:        emaStack(closes),
	}

	if rsi := indicator.RSI(closes, rsiPeriod); len(rsi) > 0 && !math.IsNaN(rsi[len(rsi)-1]) {
		ind.RSI = rsi[len(rsi)-1]
	}
	if macd := indicator.MACD(closes); len(macd.MACD) > 0 {
		ind.MACD = indicator.Last(macd.MACD)
		ind.MACDSignal = indicator.Last(macd.Signal)
	}
	if bb := indicator.Bollinger(closes, bbPeriod, bbStdDev); len(bb.Middle) > 0 {
		upper, lower := indicator.Last(bb.Upper), indicator.Last(bb.Lower)
		if upper > lower {
			ind.PercentB = (price - lower) / (upper - lower)
		}
	}
	if atr := indicator.Last(indicator.ATR(highs, lows, closes, atrPeriod)); atr > 0 {
		ind.ATR = atr
	}
	if n >= adxMinBars {
		if adx := indicator.ADX(highs, lows, closes, adxPeriod); len(adx.ADX) > 0 {
			ind.ADX = indicator.Last(adx.ADX)
			ind.PlusDI = indicator.Last(adx.PlusDI)
			ind.MinusDI = indicator.Last(adx.MinusDI)
		}
	}
	if stoch := indicator.Stochastic(highs, lows, closes); len(stoch.K) > 0 {
		ind.StochK = indicator.Last(stoch.K)
		ind.StochD = indicator.Last(stoch.D)
	}

	var volSum float64
	for _, b := range bars[n-volumeBars:] {
		volSum += b.Volume
	}
	if avg := volSum / volumeBars; avg > 0 {
		ind.VolumeRatio = bars[n-1].Volume / avg
	}
	return ind
}

// emaStack uses longer periods as history allows.
func emaStack(closes []float64) []float64 {
	n := len(closes)
	var periods []int
	switch {
	case n >= 200:
		periods = []int{9, 21, 50, 200}
	case n >= 50:
		periods = []int{9, 21, 50}
	default:
		periods = []int{9, min(21, n-1)}
	}

	out := make([]float64, len(periods))
	for i, p := range periods {
		if n <= p {
			out[i] = indicator.Mean(closes)
			continue
		}
		out[i] = indicator.Last(indicator.EMA(closes, p))
	}
	return out
}

func descending(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i-1] <= v[i] {
			return false
		}
	}
	return true
}

func ascending(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i-1] >= v[i] {
			return false
		}
	}
	return true
}

var _ strategy.Strategy = (*MultiIndicator)(nil)
