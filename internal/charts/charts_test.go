package charts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/tradebot/internal/cache"
	"github.com/newthinker/tradebot/internal/core"
)

type market struct {
	bars  map[string][]core.OHLCV
	calls int
}

func (m *market) GetTicker(context.Context, string) (*core.Quote, error) { return nil, nil }

func (m *market) GetKlines(_ context.Context, symbol, _ string, limit int) ([]core.OHLCV, error) {
	m.calls++
	bars, ok := m.bars[symbol]
	if !ok {
		return nil, core.ErrSymbolNotFound
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (m *market) GetOrderBook(context.Context, string, int) (*core.OrderBook, error) { return nil, nil }

func trend(n int, start, step float64) []core.OHLCV {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.OHLCV, n)
	for i := range bars {
		c := start + float64(i)*step
		bars[i] = core.OHLCV{Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10, Time: t0.Add(time.Duration(i) * time.Hour)}
	}
	return bars
}

func TestCandles_UsesCache(t *testing.T) {
	m := &market{bars: map[string][]core.OHLCV{"BTCUSDT": trend(50, 100, 1)}}
	s := NewService(m, cache.NewMemory(), nil)

	candles, err := s.Candles(context.Background(), "btcusdt", "", 10)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 10 {
		t.Fatalf("expected 10 candles, got %d", len(candles))
	}
	if candles[9].Close != 149 {
		t.Errorf("expected last close 149, got %f", candles[9].Close)
	}
	if _, err := s.Candles(context.Background(), "BTCUSDT", "1h", 10); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if m.calls != 1 {
		t.Errorf("expected cached second read, got %d market calls", m.calls)
	}
}

func TestCandles_Errors(t *testing.T) {
	s := NewService(&market{bars: map[string][]core.OHLCV{}}, nil, nil)
	if _, err := s.Candles(context.Background(), " ", "", 0); !errors.Is(err, core.ErrInvalidRequest) {
		t.Errorf("expected invalid request, got %v", err)
	}
	if _, err := s.Candles(context.Background(), "XYZUSDT", "", 0); !errors.Is(err, core.ErrSymbolNotFound) {
		t.Errorf("expected symbol not found, got %v", err)
	}
}

func TestCompute_AlignsToTimestamps(t *testing.T) {
	bars := trend(60, 100, 0.5)
	ind := Compute("BTCUSDT", "1h", bars)

	if len(ind.SMA20) != 41 {
		t.Errorf("expected 41 SMA points, got %d", len(ind.SMA20))
	}
	last := bars[len(bars)-1].Time.Unix()
	for name, series := range map[string][]Point{
		"sma20": ind.SMA20, "ema26": ind.EMA26,
		"macd": ind.MACD, "bb_upper": ind.BBUpper, "atr14": ind.ATR14,
	} {
		if len(series) == 0 {
			t.Errorf("%s: empty series", name)
			continue
		}
		if series[len(series)-1].Time != last {
			t.Errorf("%s: last point not on last candle", name)
		}
	}
	if ind.BBUpper[0].Value < ind.BBMiddle[0].Value {
		t.Error("upper band below middle")
	}
}

func TestMulti_Rebases(t *testing.T) {
	m := &market{bars: map[string][]core.OHLCV{
		"BTCUSDT": trend(5, 100, 10),
		"ETHUSDT": trend(5, 50, -5),
	}}
	s := NewService(m, nil, nil)

	out, err := s.Multi(context.Background(), []string{"BTCUSDT", "ETHUSDT", "NOPEUSDT"}, "", 5)
	if err != nil {
		t.Fatalf("multi: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 series, got %d", len(out))
	}
	if got := out["BTCUSDT"][4].Value; got != 140 {
		t.Errorf("expected BTC rebased 140, got %f", got)
	}
	if got := out["ETHUSDT"][4].Value; got != 60 {
		t.Errorf("expected ETH rebased 60, got %f", got)
	}

	if _, err := s.Multi(context.Background(), nil, "", 0); !errors.Is(err, core.ErrInvalidRequest) {
		t.Errorf("expected invalid request, got %v", err)
	}
	if _, err := s.Multi(context.Background(), []string{"NOPEUSDT"}, "", 0); !errors.Is(err, core.ErrNoData) {
		t.Errorf("expected no data, got %v", err)
	}
}
