package realtime_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/realtime"
	"github.com/newthinker/tradebot/internal/trade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	frame, err := realtime.Encode(realtime.PortfolioUpdate{Portfolio: trade.Portfolio{Total: 10500, OpenPositions: 2}}, now)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "portfolio_update", env["type"])
	assert.Equal(t, "2026-02-03T04:05:06Z", env["timestamp"])
	data := env["data"].(map[string]any)
	assert.InDelta(t, 10500, data["total"], 1e-9, "portfolio fields are flattened into data")

	e, err := realtime.Decode(frame)
	require.NoError(t, err)
	p, ok := e.(realtime.PortfolioUpdate)
	require.True(t, ok, "decoded %T", e)
	assert.Equal(t, 2, p.OpenPositions)
}

func TestDecode_ClientEventsWithoutData(t *testing.T) {
	e, err := realtime.Decode([]byte(`{"type":"request_active_trades"}`))
	require.NoError(t, err)
	assert.Equal(t, realtime.TypeRequestActiveTrades, e.EventType())

	e, err = realtime.Decode([]byte(`{"type":"ping","data":null}`))
	require.NoError(t, err)
	assert.IsType(t, realtime.Ping{}, e)
}

func TestDecode_Errors(t *testing.T) {
	_, err := realtime.Decode([]byte(`{"type":"whatever","data":{}}`))
	assert.ErrorIs(t, err, core.ErrUnknownEvent)

	_, err = realtime.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = realtime.Decode([]byte(`{"type":"price_update","data":{"prices":"x"}}`))
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	assert.True(t, realtime.Known(realtime.TypeBotStatus))
	assert.False(t, realtime.Known("connection_init"))
}

func TestBackoff(t *testing.T) {
	base, ceiling := 100*time.Millisecond, time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, realtime.Backoff(base, ceiling, tt.attempt), "attempt %d", tt.attempt)
	}
}
