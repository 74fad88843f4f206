package trade

import (
	"context"
	"sync/atomic"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/exchange"
	"go.uber.org/zap"
)

// AutoTrader turns routed signals into trades on the manager.
// A signal against an open position closes it; a signal with no position opens one.
type AutoTrader struct {
	m       *Manager
	virtual atomic.Bool
	logger  *zap.Logger
}

// NewAutoTrader creates an auto-trader. virtual selects paper execution.
func NewAutoTrader(m *Manager, virtual bool, logger *zap.Logger) *AutoTrader {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &AutoTrader{m: m, logger: logger.Named("autotrader")}
	a.virtual.Store(virtual)
	return a
}

// SetVirtual switches between paper and exchange execution.
func (a *AutoTrader) SetVirtual(v bool) { a.virtual.Store(v) }

// Virtual reports the current execution mode.
func (a *AutoTrader) Virtual() bool { return a.virtual.Load() }

// Execute acts on one signal. It returns the trade it opened or closed,
// or nil when the signal needs no action.
func (a *AutoTrader) Execute(ctx context.Context, sig core.Signal) (*Trade, error) {
	var side exchange.Side
	switch sig.Action.Direction() {
	case 1:
		side = exchange.SideBuy
	case -1:
		side = exchange.SideSell
	default:
		return nil, nil
	}

	if open, ok := a.m.OpenFor(sig.Symbol); ok {
		if open.Side == side {
			a.logger.Debug("position already open in signal direction",
				zap.String("symbol", sig.Symbol), zap.String("trade_id", open.ID))
			return nil, nil
		}
		closed, err := a.m.CloseAt(ctx, open.ID, ReasonSignal, sig.Price)
		if err != nil {
			return nil, err
		}
		a.logger.Info("position reversed by signal",
			zap.String("symbol", sig.Symbol),
			zap.String("trade_id", closed.ID),
			zap.Float64("pnl", closed.PnL))
		return closed, nil
	}

	t, err := a.m.Open(ctx, OpenRequest{
		Symbol:     sig.Symbol,
		Side:       side,
		Price:      sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Strategy:   sig.Strategy,
		SignalID:   sig.ID,
		Virtual:    a.virtual.Load(),
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
