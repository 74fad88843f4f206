// Package backtest replays candle-driven strategies over historical klines.
package backtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/strategy"
	"go.uber.org/zap"
)

const (
	DefaultInterval = "1h"
	DefaultLimit    = 500
	MaxLimit        = 1000
)

// KlineSource fetches historical bars, oldest first.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]core.OHLCV, error)
}

// Backtester runs strategy backtests against historical data
type Backtester struct {
	source     KlineSource
	commission float64
	logger     *zap.Logger
}

// New creates a Backtester. commission is charged on entry and on exit.
func New(source KlineSource, commission float64, logger *zap.Logger) *Backtester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backtester{source: source, commission: commission, logger: logger.Named("backtest")}
}

// Supported reports whether strat can be replayed from candles alone.
func Supported(strat strategy.Strategy) error {
	req := strat.RequiredData()
	var missing []string
	if req.OrderBook || req.BookHistory {
		missing = append(missing, "order book")
	}
	if req.WhaleFlows {
		missing = append(missing, "whale flows")
	}
	if len(missing) > 0 {
		return core.WrapError(core.ErrInvalidRequest,
			fmt.Errorf("strategy %s needs live %s data", strat.Name(), strings.Join(missing, " and ")))
	}
	return nil
}

// Run replays strat over the most recent req.Limit bars of req.Symbol.
func (b *Backtester) Run(ctx context.Context, strat strategy.Strategy, req Request) (*Result, error) {
	if err := Supported(strat); err != nil {
		return nil, err
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		return nil, core.Errorf(core.ErrInvalidRequest, "symbol is required")
	}
	if req.Interval == "" {
		req.Interval = DefaultInterval
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	req.Limit = min(req.Limit, MaxLimit)

	ohlcv, err := b.source.GetKlines(ctx, req.Symbol, req.Interval, req.Limit)
	if err != nil {
		return nil, err
	}
	if len(ohlcv) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no klines for %s", req.Symbol)
	}

	windowSize := max(strat.RequiredData().Candles, 1)
	if len(ohlcv) < windowSize {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("%s needs %d bars, got %d", strat.Name(), windowSize, len(ohlcv)))
	}

	var (
		allSignals []core.Signal
		trades     []Trade
		open       *Trade
	)

	for i := windowSize - 1; i < len(ohlcv); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		bar := ohlcv[i]

		// protective exits trigger inside the bar, before the close is analysed
		if open != nil {
			if reason, price, hit := protectiveExit(*open, bar); hit {
				trades = append(trades, b.exit(*open, price, bar, reason))
				open = nil
			}
		}

		window := ohlcv[i-windowSize+1 : i+1]
		signals, err := strat.Analyze(strategy.AnalysisContext{
			Symbol: req.Symbol,
			OHLCV:  window,
			Quote:  quoteAt(req.Symbol, window),
			Now:    bar.Time,
		})
		if err != nil {
			b.logger.Debug("analysis failed", zap.Time("bar", bar.Time), zap.Error(err))
			continue
		}

		for _, sig := range signals {
			sig.Symbol = req.Symbol
			sig.Strategy = strat.Name()
			if sig.Price <= 0 {
				sig.Price = bar.Close
			}
			allSignals = append(allSignals, sig)

			switch {
			case sig.Action.IsBuy() && open == nil:
				open = &Trade{
					EntrySignal: sig,
					EntryPrice:  bar.Close,
					EntryTime:   bar.Time,
					StopLoss:    sig.StopLoss,
					TakeProfit:  sig.TakeProfit,
				}
			case sig.Action.IsSell() && open != nil:
				trades = append(trades, b.exit(*open, bar.Close, bar, ExitSignal))
				open = nil
			}
		}
	}

	// Mark any open position to the last close
	if open != nil {
		trades = append(trades, b.exit(*open, ohlcv[len(ohlcv)-1].Close, ohlcv[len(ohlcv)-1], ExitEndOfData))
	}

	return &Result{
		Strategy:  strat.Name(),
		Symbol:    req.Symbol,
		Interval:  req.Interval,
		StartDate: ohlcv[0].Time,
		EndDate:   ohlcv[len(ohlcv)-1].Time,
		Bars:      len(ohlcv),
		Signals:   allSignals,
		Trades:    trades,
		Stats:     CalculateStats(trades),
	}, nil
}

// protectiveExit checks the bar range against the stop and target. When both
// are inside the range the stop wins.
func protectiveExit(t Trade, bar core.OHLCV) (ExitReason, float64, bool) {
	if t.StopLoss > 0 && bar.Low <= t.StopLoss {
		return ExitStopLoss, t.StopLoss, true
	}
	if t.TakeProfit > 0 && bar.High >= t.TakeProfit {
		return ExitTakeProfit, t.TakeProfit, true
	}
	return "", 0, false
}

func (b *Backtester) exit(t Trade, price float64, bar core.OHLCV, reason ExitReason) Trade {
	t.ExitPrice = price
	t.ExitTime = bar.Time
	t.ExitReason = reason
	t.Return = price*(1-b.commission)/(t.EntryPrice*(1+b.commission)) - 1
	return t
}

// quoteAt synthesizes the ticker a live cycle would have seen at the last bar.
func quoteAt(symbol string, window []core.OHLCV) *core.Quote {
	last := window[len(window)-1]
	q := &core.Quote{Symbol: symbol, Price: last.Close, Time: last.Time}
	from := max(len(window)-24, 0)
	for _, bar := range window[from:] {
		q.Volume24h += bar.Volume
	}
	if first := window[from]; first.Open > 0 {
		q.ChangePercent24h = (last.Close - first.Open) / first.Open * 100
	}
	return q
}
