package backtest

import (
	"github.com/newthinker/tradebot/internal/analytics"
)

// CalculateStats summarizes a replay. Trades still open when the data ran out
// are counted in TotalTrades and OpenAtEnd but excluded from every return
// figure.
func CalculateStats(trades []Trade) Stats {
	s := Stats{TotalTrades: len(trades)}

	var returns []float64
	var gross, loss float64
	for _, t := range trades {
		if !t.IsClosed() {
			s.OpenAtEnd++
			continue
		}
		r := t.Return
		if len(returns) == 0 || r > s.BestTrade {
			s.BestTrade = r
		}
		if len(returns) == 0 || r < s.WorstTrade {
			s.WorstTrade = r
		}
		returns = append(returns, r)
		if t.IsWin() {
			s.WinningTrades++
			gross += r
		} else {
			s.LosingTrades++
			loss -= r
		}
	}
	if len(returns) == 0 {
		return s
	}

	curve := equityCurve(returns)
	var sum float64
	for _, r := range returns {
		sum += r
	}

	s.WinRate = float64(s.WinningTrades) / float64(len(returns)) * 100
	s.TotalReturn = (curve[len(curve)-1] - 1) * 100
	s.AvgReturn = sum / float64(len(returns)) * 100
	s.BestTrade *= 100
	s.WorstTrade *= 100
	s.MaxDrawdown = analytics.MaxDrawdown(curve) * 100
	s.SharpeRatio = analytics.SharpeRatio(returns)
	if loss > 0 {
		s.ProfitFactor = gross / loss
	}
	return s
}

// equityCurve compounds returns onto a starting equity of 1. The first point
// is the starting equity so a losing first trade registers as a drawdown.
func equityCurve(returns []float64) []float64 {
	curve := make([]float64, 1, len(returns)+1)
	curve[0] = 1
	for _, r := range returns {
		curve = append(curve, curve[len(curve)-1]*(1+r))
	}
	return curve
}
