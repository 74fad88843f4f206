// Package momentum trades in the direction of strong, volume-confirmed moves.
package momentum

import (
	"fmt"
	"math"
	"strings"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/indicator"
	"github.com/newthinker/tradebot/internal/strategy"
)

const (
	change5Threshold  = 1.0
	change10Threshold = 2.0
	rocThreshold      = 2.0
	volumeThreshold   = 1.5
	leaderThreshold   = 0.4
	atrPeriod         = 14
	volumeWindow      = 20
)

// Momentum scores price change, EMA cross, RSI, ROC and volume.
type Momentum struct {
	rsiPeriod   int
	emaFast     int
	emaSlow     int
	rocPeriod   int
	minStrength float64
}

// New creates the strategy with default periods.
func New() *Momentum {
	return &Momentum{
		rsiPeriod:   14,
		emaFast:     9,
		emaSlow:     21,
		rocPeriod:   10,
		minStrength: 0.6,
	}
}

func (m *Momentum) Name() string {
	return "momentum"
}

func (m *Momentum) Description() string {
	return fmt.Sprintf("Momentum (EMA %d/%d, RSI %d, ROC %d)", m.emaFast, m.emaSlow, m.rsiPeriod, m.rocPeriod)
}

func (m *Momentum) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		Candles:    m.minCandles(),
		Indicators: []string{"EMA", "RSI", "ROC", "ATR"},
	}
}

func (m *Momentum) minCandles() int {
	return max(m.emaSlow, m.rsiPeriod, m.rocPeriod, volumeWindow) + 10
}

func (m *Momentum) Init(cfg strategy.Config) error {
	p := cfg.Params
	m.rsiPeriod = strategy.ParamInt(p, "rsi_period", m.rsiPeriod)
	m.emaFast = strategy.ParamInt(p, "ema_fast", m.emaFast)
	m.emaSlow = strategy.ParamInt(p, "ema_slow", m.emaSlow)
	m.rocPeriod = strategy.ParamInt(p, "roc_period", m.rocPeriod)
	m.minStrength = strategy.ParamFloat(p, "min_momentum_score", m.minStrength)
	if m.emaFast >= m.emaSlow {
		return fmt.Errorf("ema_fast (%d) must be below ema_slow (%d)", m.emaFast, m.emaSlow)
	}
	return nil
}

// Indicators are the values a decision is based on.
type Indicators struct {
	Price       float64
	Change5     float64
	Change10    float64
	EMAFast     float64
	EMASlow     float64
	RSI         float64
	ROC         float64
	ATR         float64
	VolumeRatio float64
}

// Score is the directional momentum reading.
type Score struct {
	Bullish    float64
	Bearish    float64
	Direction  core.Action // BUY, SELL or NEUTRAL
	Strength   float64
	Components []string
}

func (m *Momentum) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if len(ctx.OHLCV) < m.minCandles() {
		return nil, nil
	}

	ind := m.compute(ctx.OHLCV)
	score := m.score(ind)
	if score.Strength < m.minStrength || score.Direction == core.ActionNeutral {
		return nil, nil
	}

	if score.Direction == core.ActionBuy && ind.RSI > 80 {
		return nil, nil
	}
	if score.Direction == core.ActionSell && ind.RSI < 20 {
		return nil, nil
	}

	atr := ind.ATR
	if atr <= 0 {
		atr = ind.Price * 0.01
	}
	slMult := 2.0
	if score.Strength > 0.7 {
		slMult = 2.5
	}
	tpMult := 3.0
	if score.Strength > 0.8 {
		tpMult = 4.0
	}

	dir := float64(score.Direction.Direction())
	stopLoss := ind.Price - dir*atr*slMult
	takeProfit := ind.Price + dir*atr*tpMult
	rr := math.Abs(takeProfit-ind.Price) / math.Abs(ind.Price-stopLoss)

	minRR := 2.0
	if score.Strength > 0.7 {
		minRR = 1.5
	}
	if rr < minRR {
		return nil, nil
	}

	conf := score.Strength
	if ind.VolumeRatio > volumeThreshold {
		conf += 0.05
	}
	if rr > 3.0 {
		conf += 0.05
	}
	if ind.RSI > 75 || ind.RSI < 25 {
		conf -= 0.1
	}
	conf = math.Min(0.95, math.Max(0.1, conf))

	components := score.Components
	if len(components) > 3 {
		components = components[:3]
	}

	return []core.Signal{{
		Symbol:      ctx.Symbol,
		Action:      score.Direction,
		Confidence:  conf,
		Price:       ind.Price,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		Reason:      fmt.Sprintf("Momentum %s (%.2f): %s", score.Direction, score.Strength, strings.Join(components, ", ")),
		GeneratedAt: ctx.Now,
		Metadata: map[string]any{
			"strength":      score.Strength,
			"bullish_score": score.Bullish,
			"bearish_score": score.Bearish,
			"rsi":           ind.RSI,
			"roc":           ind.ROC,
			"atr":           ind.ATR,
			"volume_ratio":  ind.VolumeRatio,
			"risk_reward":   rr,
		},
	}}, nil
}

func (m *Momentum) compute(bars []core.OHLCV) Indicators {
	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		closes[i], highs[i], lows[i] = b.Close, b.High, b.Low
	}
	price := closes[n-1]

	ind := Indicators{
		Price:    price,
		Change5:  pctChange(closes[n-5], price),
		Change10: pctChange(closes[n-10], price),
		EMAFast:  indicator.Last(indicator.EMA(closes, m.emaFast)),
		EMASlow:  indicator.Last(indicator.EMA(closes, m.emaSlow)),
		RSI:      50,
		ROC:      indicator.Last(indicator.ROC(closes, m.rocPeriod)),
		ATR:      indicator.Last(indicator.ATR(highs, lows, closes, atrPeriod)),
	}
	if rsi := indicator.RSI(closes, m.rsiPeriod); len(rsi) > 0 && !math.IsNaN(rsi[len(rsi)-1]) {
		ind.RSI = rsi[len(rsi)-1]
	}

	var volSum float64
	for _, b := range bars[n-volumeWindow:] {
		volSum += b.Volume
	}
	ind.VolumeRatio = 1
	if avg := volSum / volumeWindow; avg > 0 {
		ind.VolumeRatio = bars[n-1].Volume / avg
	}
	return ind
}

func (m *Momentum) score(ind Indicators) Score {
	var s Score

	switch {
	case ind.Change5 > change5Threshold:
		s.Bullish += 0.20
		s.Components = append(s.Components, fmt.Sprintf("price %+.1f%% over 5 bars", ind.Change5))
	case ind.Change5 < -change5Threshold:
		s.Bearish += 0.20
		s.Components = append(s.Components, fmt.Sprintf("price %+.1f%% over 5 bars", ind.Change5))
	}

	switch {
	case ind.Change10 > change10Threshold:
		s.Bullish += 0.20
		s.Components = append(s.Components, fmt.Sprintf("price %+.1f%% over 10 bars", ind.Change10))
	case ind.Change10 < -change10Threshold:
		s.Bearish += 0.20
		s.Components = append(s.Components, fmt.Sprintf("price %+.1f%% over 10 bars", ind.Change10))
	}

	if ind.EMAFast > ind.EMASlow {
		s.Bullish += 0.20
		s.Components = append(s.Components, "EMA cross up")
	} else {
		s.Bearish += 0.20
		s.Components = append(s.Components, "EMA cross down")
	}

	switch {
	case ind.RSI > 60:
		s.Bullish += 0.15
		s.Components = append(s.Components, fmt.Sprintf("RSI bullish %.1f", ind.RSI))
	case ind.RSI < 40:
		s.Bearish += 0.15
		s.Components = append(s.Components, fmt.Sprintf("RSI bearish %.1f", ind.RSI))
	}

	switch {
	case ind.ROC > rocThreshold:
		s.Bullish += 0.15
		s.Components = append(s.Components, fmt.Sprintf("ROC rising %.1f%%", ind.ROC))
	case ind.ROC < -rocThreshold:
		s.Bearish += 0.15
		s.Components = append(s.Components, fmt.Sprintf("ROC falling %.1f%%", ind.ROC))
	}

	if ind.VolumeRatio > volumeThreshold {
		switch {
		case s.Bullish > s.Bearish:
			s.Bullish += 0.10
			s.Components = append(s.Components, fmt.Sprintf("volume confirms %.1fx", ind.VolumeRatio))
		case s.Bearish > s.Bullish:
			s.Bearish += 0.10
			s.Components = append(s.Components, fmt.Sprintf("volume confirms %.1fx", ind.VolumeRatio))
		}
	}

	switch {
	case s.Bullish > s.Bearish && s.Bullish > leaderThreshold:
		s.Direction, s.Strength = core.ActionBuy, s.Bullish
	case s.Bearish > s.Bullish && s.Bearish > leaderThreshold:
		s.Direction, s.Strength = core.ActionSell, s.Bearish
	default:
		s.Direction, s.Strength = core.ActionNeutral, math.Max(s.Bullish, s.Bearish)
	}
	return s
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

var _ strategy.Strategy = (*Momentum)(nil)
