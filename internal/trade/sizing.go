package trade

import (
	"github.com/newthinker/tradebot/internal/exchange"
)

// Sizing holds the parameters for risk-based position sizing.
type Sizing struct {
	RiskPerTrade   float64 // fraction of balance risked per trade
	StopLossPct    float64 // percent
	MaxPositionPct float64 // percent of balance in one position
	MaxPositions   int
}

// PositionSize returns the base quantity to buy at price. It takes the smaller of
// the risk-derived size and the max position size, then shrinks it as more
// positions are open. Returns 0 when no more positions are allowed.
func PositionSize(balance, price float64, s Sizing, open int) float64 {
	if balance <= 0 || price <= 0 || s.MaxPositions <= 0 || open >= s.MaxPositions {
		return 0
	}
	size := balance * (s.MaxPositionPct / 100) / price
	if s.RiskPerTrade > 0 && s.StopLossPct > 0 {
		byRisk := balance * s.RiskPerTrade / (price * s.StopLossPct / 100)
		size = min(size, byRisk)
	}
	return size * (1 - float64(open)/float64(s.MaxPositions)*0.5)
}

// DefaultStops derives stop loss and take profit from percentages.
func DefaultStops(side exchange.Side, price, stopLossPct, takeProfitPct float64) (sl, tp float64) {
	if side == exchange.SideBuy {
		return price * (1 - stopLossPct/100), price * (1 + takeProfitPct/100)
	}
	return price * (1 + stopLossPct/100), price * (1 - takeProfitPct/100)
}

// CorrectStopLoss moves a stop loss on the wrong side of price 3% away from it.
func CorrectStopLoss(side exchange.Side, price, sl float64) float64 {
	switch {
	case side == exchange.SideBuy && sl >= price:
		return price * 0.97
	case side == exchange.SideSell && sl <= price:
		return price * 1.03
	}
	return sl
}

// CorrectTakeProfit moves a take profit on the wrong side of price 6% away from it.
func CorrectTakeProfit(side exchange.Side, price, tp float64) float64 {
	switch {
	case side == exchange.SideBuy && tp <= price:
		return price * 1.06
	case side == exchange.SideSell && tp >= price:
		return price * 0.94
	}
	return tp
}

// StopHit reports which protective level, if any, price has crossed.
func StopHit(t Trade, price float64) (CloseReason, bool) {
	if t.Side == exchange.SideBuy {
		if t.StopLoss > 0 && price <= t.StopLoss {
			return ReasonStopLoss, true
		}
		if t.TakeProfit > 0 && price >= t.TakeProfit {
			return ReasonTakeProfit, true
		}
		return "", false
	}
	if t.StopLoss > 0 && price >= t.StopLoss {
		return ReasonStopLoss, true
	}
	if t.TakeProfit > 0 && price <= t.TakeProfit {
		return ReasonTakeProfit, true
	}
	return "", false
}
