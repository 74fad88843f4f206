package trade_test

import (
	"context"
	"testing"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/exchange"
	"github.com/newthinker/tradebot/internal/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoTrader_OpensAndReverses(t *testing.T) {
	m := trade.NewManager(testConfig(), nil, nil, nil)
	a := trade.NewAutoTrader(m, true, nil)
	ctx := context.Background()

	opened, err := a.Execute(ctx, core.Signal{
		ID: "sig-1", Symbol: "BTCUSDT", Action: core.ActionStrongBuy, Price: 100, Strategy: "aggregator",
	})
	require.NoError(t, err)
	require.NotNil(t, opened)
	assert.Equal(t, exchange.SideBuy, opened.Side)
	assert.True(t, opened.Virtual)
	assert.Equal(t, "sig-1", opened.SignalID)

	// same direction is a no-op
	again, err := a.Execute(ctx, core.Signal{Symbol: "BTCUSDT", Action: core.ActionBuy, Price: 101})
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, m.Active(), 1)

	closed, err := a.Execute(ctx, core.Signal{Symbol: "BTCUSDT", Action: core.ActionSell, Price: 102})
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, opened.ID, closed.ID)
	assert.Equal(t, trade.ReasonSignal, closed.CloseReason)
	assert.Equal(t, 102.0, closed.ExitPrice)
	assert.Empty(t, m.Active())
}

func TestAutoTrader_IgnoresNeutral(t *testing.T) {
	m := trade.NewManager(testConfig(), nil, nil, nil)
	a := trade.NewAutoTrader(m, true, nil)

	got, err := a.Execute(context.Background(), core.Signal{Symbol: "BTCUSDT", Action: core.ActionNeutral, Price: 100})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, m.All())
}

func TestAutoTrader_RealModeNeedsExchange(t *testing.T) {
	m := trade.NewManager(testConfig(), nil, nil, nil)
	a := trade.NewAutoTrader(m, true, nil)
	a.SetVirtual(false)
	assert.False(t, a.Virtual())

	_, err := a.Execute(context.Background(), core.Signal{Symbol: "ETHUSDT", Action: core.ActionSell, Price: 3000})
	assert.ErrorIs(t, err, core.ErrOrderFailed)
	assert.ErrorIs(t, err, trade.ErrNoExchange)
}
