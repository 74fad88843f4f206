package analytics

import (
	"math"

	"github.com/newthinker/tradebot/internal/trade"
)

// MaxDrawdown returns the largest peak-to-trough decline of an equity curve as a fraction.
func MaxDrawdown(equity []float64) float64 {
	var maxDD, peak float64
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// SharpeRatio is the mean per-trade return over its sample standard deviation.
// Trade returns are not annualized; the bot has no fixed holding period.
func SharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std
}

// profitFactor is gross profit over gross loss. With no losses it is the gross
// profit itself capped to keep JSON finite.
func profitFactor(trades []trade.Trade) float64 {
	var profit, loss float64
	for _, t := range trades {
		if t.PnL > 0 {
			profit += t.PnL
		} else {
			loss -= t.PnL
		}
	}
	if loss == 0 {
		if profit > 0 {
			return 999
		}
		return 0
	}
	return profit / loss
}
