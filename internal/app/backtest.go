package app

import (
	"context"
	"slices"

	"github.com/newthinker/tradebot/internal/backtest"
	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
)

// Backtestable lists the strategies that can be replayed from candles alone.
func Backtestable() []string {
	var names []string
	for name, factory := range Factories {
		if backtest.Supported(factory()) == nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Backtest replays the named strategy, configured from cfg whether or not
// it is enabled, over the klines bt fetches.
func Backtest(ctx context.Context, bt *backtest.Backtester, cfg *config.Config, name string, req backtest.Request) (*backtest.Result, error) {
	factory, ok := Factories[name]
	if !ok {
		return nil, core.Errorf(core.ErrInvalidRequest, "unknown strategy %q", name)
	}
	s, err := newStrategy(factory, name, cfg.Strategies[name])
	if err != nil {
		return nil, err
	}
	return bt.Run(ctx, s, req)
}

// Backtest runs a backtest against the runtime's market data.
func (rt *Runtime) Backtest(ctx context.Context, name string, req backtest.Request) (*backtest.Result, error) {
	return Backtest(ctx, rt.Backtester, rt.Config, name, req)
}
