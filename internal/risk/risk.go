// Package risk scores the market risk of a trading pair for the signal matrix.
package risk

import (
	"math"
	"strings"
	"time"

	"github.com/newthinker/tradebot/internal/aggregator"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/indicator"
)

// Level is a coarse risk bucket.
type Level string

const (
	LevelLow     Level = "LOW"
	LevelMedium  Level = "MEDIUM"
	LevelHigh    Level = "HIGH"
	LevelExtreme Level = "EXTREME"
	LevelUnknown Level = "UNKNOWN"
)

// Factor names.
const (
	FactorVolatility          = "volatility"
	FactorBBWidth             = "bb_width"
	FactorVolumeAnomalies     = "volume_anomalies"
	FactorSignalContradiction = "signal_contradiction"
	FactorTrendStrength       = "trend_strength"
)

// MinCandles is the history needed for a real assessment.
const MinCandles = 20

var weights = map[string]float64{
	FactorVolatility:          0.3,
	FactorBBWidth:             0.2,
	FactorVolumeAnomalies:     0.2,
	FactorSignalContradiction: 0.2,
	FactorTrendStrength:       0.1,
}

// Assessment is the risk verdict for one symbol.
type Assessment struct {
	Level   Level              `json:"level"`
	Score   float64            `json:"score"`
	Details string             `json:"details"`
	Factors map[string]float64 `json:"factors"`
}

// Default is returned when there is not enough history.
func Default() Assessment {
	return Assessment{
		Level:   LevelMedium,
		Score:   0.5,
		Details: "insufficient data for an accurate assessment",
		Factors: map[string]float64{
			FactorVolatility:          0.5,
			FactorBBWidth:             0.5,
			FactorVolumeAnomalies:     0,
			FactorSignalContradiction: 0.5,
			FactorTrendStrength:       0.5,
		},
	}
}

// Unknown marks a symbol whose analysis failed.
func Unknown(reason string) Assessment {
	return Assessment{Level: LevelUnknown, Details: reason, Factors: map[string]float64{}}
}

// Assess scores candles (oldest first), the strategies' votes and the number
// of volume anomalies seen over the last 24 hours.
func Assess(candles []core.OHLCV, votes []aggregator.Vote, volumeAnomalies int) Assessment {
	if len(candles) < MinCandles {
		return Default()
	}

	factors := map[string]float64{
		FactorVolatility:          volatility(candles),
		FactorBBWidth:             bandWidth(candles),
		FactorVolumeAnomalies:     math.Min(float64(volumeAnomalies)/10, 1),
		FactorSignalContradiction: contradiction(votes),
		FactorTrendStrength:       trendStrength(candles),
	}

	var score float64
	for name, w := range weights {
		score += factors[name] * w
	}
	return classify(score, factors)
}

func classify(score float64, factors map[string]float64) Assessment {
	var level Level
	var details []string
	switch {
	case score < 0.25:
		level = LevelLow
		details = append(details, "low volatility, consistent signals")
	case score < 0.5:
		level = LevelMedium
		details = append(details, "moderate volatility, stable trend")
	case score < 0.75:
		level = LevelHigh
		details = append(details, "high volatility, conflicting signals")
	default:
		level = LevelExtreme
		details = append(details, "extreme volatility, market uncertainty")
	}

	if factors[FactorVolatility] > 0.7 {
		details = append(details, "very high volatility (ATR)")
	}
	if factors[FactorSignalContradiction] > 0.7 {
		details = append(details, "strong disagreement between strategies")
	}
	if factors[FactorVolumeAnomalies] > 0.5 {
		details = append(details, "volume anomalies detected")
	}

	return Assessment{
		Level:   level,
		Score:   score,
		Details: strings.Join(details, ". "),
		Factors: factors,
	}
}

func volatility(candles []core.OHLCV) float64 {
	n := len(candles)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		high[i], low[i], closes[i] = c.High, c.Low, c.Close
	}
	atr := indicator.Last(indicator.ATR(high, low, closes, 14))
	price := closes[n-1]
	if price <= 0 {
		return 0
	}
	return math.Min(atr/price*100/10, 1)
}

func bandWidth(candles []core.OHLCV) float64 {
	bands := indicator.Bollinger(core.Closes(candles), 20, 2)
	middle := indicator.Last(bands.Middle)
	if middle <= 0 {
		return 0
	}
	width := (indicator.Last(bands.Upper) - indicator.Last(bands.Lower)) / middle
	return math.Min(width/0.1, 1)
}

func contradiction(votes []aggregator.Vote) float64 {
	if len(votes) == 0 {
		return 0.5
	}
	var buys, sells int
	for _, v := range votes {
		switch {
		case v.Action.IsBuy():
			buys++
		case v.Action.IsSell():
			sells++
		}
	}
	diff := buys - sells
	if diff < 0 {
		diff = -diff
	}
	return 1 - float64(diff)/float64(len(votes))
}

func trendStrength(candles []core.OHLCV) float64 {
	if len(candles) < 50 {
		return 0.5
	}
	closes := core.Closes(candles)
	short := indicator.Last(indicator.EMA(closes, 12))
	long := indicator.Last(indicator.EMA(closes, 26))
	if long <= 0 {
		return 0.5
	}
	return 1 - math.Min(math.Abs(short-long)/long/0.05, 1)
}

// VolumeAnomalies counts bars since the cutoff whose volume exceeds
// multiplier times the mean volume of the whole series.
func VolumeAnomalies(candles []core.OHLCV, since time.Time, multiplier float64) int {
	if len(candles) == 0 {
		return 0
	}
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		volumes[i] = c.Volume
	}
	threshold := indicator.Mean(volumes) * multiplier
	if threshold <= 0 {
		return 0
	}
	count := 0
	for _, c := range candles {
		if !c.Time.Before(since) && c.Volume > threshold {
			count++
		}
	}
	return count
}
