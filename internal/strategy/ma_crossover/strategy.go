// Package ma_crossover emits a signal on the bar where a fast moving average
// crosses a slow one.
package ma_crossover

import (
	"fmt"
	"math"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/indicator"
	"github.com/newthinker/tradebot/internal/strategy"
)

const atrPeriod = 14

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	fastPeriod int
	slowPeriod int
	useEMA     bool
	slATR      float64
	tpATR      float64
}

// New creates the strategy with SMA 9/21 and 2/4 ATR exits.
func New() *MACrossover {
	return &MACrossover{
		fastPeriod: 9,
		slowPeriod: 21,
		slATR:      2,
		tpATR:      4,
	}
}

func (m *MACrossover) Name() string {
	return "ma_crossover"
}

func (m *MACrossover) Description() string {
	kind := "SMA"
	if m.useEMA {
		kind = "EMA"
	}
	return fmt.Sprintf("MA Crossover (%s %d/%d)", kind, m.fastPeriod, m.slowPeriod)
}

func (m *MACrossover) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		Candles:    m.slowPeriod + 10,
		Indicators: []string{"SMA", "EMA", "ATR"},
	}
}

func (m *MACrossover) Init(cfg strategy.Config) error {
	p := cfg.Params
	m.fastPeriod = strategy.ParamInt(p, "fast_period", m.fastPeriod)
	m.slowPeriod = strategy.ParamInt(p, "slow_period", m.slowPeriod)
	m.slATR = strategy.ParamFloat(p, "stop_loss_atr", m.slATR)
	m.tpATR = strategy.ParamFloat(p, "take_profit_atr", m.tpATR)
	if kind, ok := p["ma_type"].(string); ok {
		switch kind {
		case "ema":
			m.useEMA = true
		case "sma":
			m.useEMA = false
		default:
			return fmt.Errorf("unknown ma_type %q", kind)
		}
	}
	if m.fastPeriod <= 0 || m.fastPeriod >= m.slowPeriod {
		return fmt.Errorf("fast_period (%d) must be positive and below slow_period (%d)", m.fastPeriod, m.slowPeriod)
	}
	return nil
}

func (m *MACrossover) average(prices []float64, period int) []float64 {
	if m.useEMA {
		return indicator.EMA(prices, period)
	}
	return indicator.SMA(prices, period)
}

func (m *MACrossover) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	// one extra bar for the previous averages
	if len(ctx.OHLCV) < m.slowPeriod+1 {
		return nil, nil
	}

	closes := core.Closes(ctx.OHLCV)
	fastMA := m.average(closes, m.fastPeriod)
	slowMA := m.average(closes, m.slowPeriod)
	if len(fastMA) < 2 || len(slowMA) < 2 {
		return nil, nil
	}

	currFast, prevFast := fastMA[len(fastMA)-1], fastMA[len(fastMA)-2]
	currSlow, prevSlow := slowMA[len(slowMA)-1], slowMA[len(slowMA)-2]

	var action core.Action
	var kind string
	switch {
	case prevFast <= prevSlow && currFast > currSlow:
		action, kind = core.ActionBuy, "golden_cross"
	case prevFast >= prevSlow && currFast < currSlow:
		action, kind = core.ActionSell, "death_cross"
	default:
		return nil, nil
	}

	n := len(ctx.OHLCV)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range ctx.OHLCV {
		highs[i], lows[i] = b.High, b.Low
	}
	price := closes[n-1]
	atr := indicator.Last(indicator.ATR(highs, lows, closes, atrPeriod))
	if atr <= 0 {
		atr = price * 0.01
	}
	dir := float64(action.Direction())

	return []core.Signal{{
		Symbol:      ctx.Symbol,
		Action:      action,
		Confidence:  confidence(currFast, currSlow),
		Price:       price,
		StopLoss:    price - dir*atr*m.slATR,
		TakeProfit:  price + dir*atr*m.tpATR,
		Reason:      fmt.Sprintf("MA%d (%.2f) crossed %s MA%d (%.2f)", m.fastPeriod, currFast, crossWord(action), m.slowPeriod, currSlow),
		GeneratedAt: ctx.Now,
		Metadata: map[string]any{
			"fast_ma": currFast,
			"slow_ma": currSlow,
			"atr":     atr,
			"type":    kind,
		},
	}}, nil
}

func crossWord(a core.Action) string {
	if a.IsBuy() {
		return "above"
	}
	return "below"
}

// confidence grows with the gap between the averages, 0.5 to 0.9.
func confidence(fast, slow float64) float64 {
	if slow == 0 {
		return 0.5
	}
	return math.Min(0.5+math.Abs(fast-slow)/slow*10, 0.9)
}

var _ strategy.Strategy = (*MACrossover)(nil)
