// Package charts serves candle and indicator series for the chart views.
package charts

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/newthinker/tradebot/internal/cache"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/exchange"
	"github.com/newthinker/tradebot/internal/indicator"
	"go.uber.org/zap"
)

const (
	DefaultInterval = "1h"
	DefaultLimit    = 100
	MaxLimit        = 1000
	MaxSymbols      = 10
	cacheTTL        = 30 * time.Second
)

// Candle is one OHLCV bar with a unix-second timestamp.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Point is one value of an indicator series.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Indicators holds every series for one symbol, each aligned to candle times.
type Indicators struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	SMA20    []Point `json:"sma20"`
	EMA12    []Point `json:"ema12"`
	EMA26    []Point `json:"ema26"`
	RSI14    []Point `json:"rsi14"`
	MACD     []Point `json:"macd"`
	Signal   []Point `json:"macd_signal"`
	BBUpper  []Point `json:"bb_upper"`
	BBMiddle []Point `json:"bb_middle"`
	BBLower  []Point `json:"bb_lower"`
	ATR14    []Point `json:"atr14"`
}

// Service reads klines through an optional cache.
type Service struct {
	market exchange.MarketData
	cache  cache.Cache
	logger *zap.Logger
}

// NewService creates a chart service. c may be nil.
func NewService(market exchange.MarketData, c cache.Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{market: market, cache: c, logger: logger.Named("charts")}
}

func (s *Service) klines(ctx context.Context, symbol, interval string, limit int) ([]core.OHLCV, error) {
	key := fmt.Sprintf("klines:%s:%s:%d", symbol, interval, limit)
	if s.cache != nil {
		var bars []core.OHLCV
		if ok, err := cache.GetJSON(ctx, s.cache, key, &bars); err != nil {
			s.logger.Warn("kline cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return bars, nil
		}
	}

	bars, err := s.market.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no klines for %s", symbol)
	}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, bars, cacheTTL); err != nil {
			s.logger.Warn("kline cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return bars, nil
}

func normalize(symbol, interval string, limit int) (string, string, int, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", "", 0, core.Errorf(core.ErrInvalidRequest, "symbol is required")
	}
	if interval == "" {
		interval = DefaultInterval
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return symbol, interval, min(limit, MaxLimit), nil
}

// Candles returns up to limit bars, oldest first.
func (s *Service) Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	symbol, interval, limit, err := normalize(symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	bars, err := s.klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candle, len(bars))
	for i, b := range bars {
		out[i] = Candle{Time: b.Time.Unix(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out, nil
}

// align pairs a tail-aligned series with the last len(values) timestamps.
// NaN and infinite values are dropped; JSON cannot carry them.
func align(times []int64, values []float64) []Point {
	n := min(len(values), len(times))
	out := make([]Point, 0, n)
	offsetT, offsetV := len(times)-n, len(values)-n
	for i := range n {
		v := values[offsetV+i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, Point{Time: times[offsetT+i], Value: v})
	}
	return out
}

// Indicators computes the standard indicator set over the latest bars.
func (s *Service) Indicators(ctx context.Context, symbol, interval string, limit int) (*Indicators, error) {
	symbol, interval, limit, err := normalize(symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	bars, err := s.klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	return Compute(symbol, interval, bars), nil
}

// Compute derives the indicator set from bars, oldest first.
func Compute(symbol, interval string, bars []core.OHLCV) *Indicators {
	n := len(bars)
	times := make([]int64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i, b := range bars {
		times[i], high[i], low[i], closes[i] = b.Time.Unix(), b.High, b.Low, b.Close
	}

	macd := indicator.MACD(closes)
	bands := indicator.Bollinger(closes, 20, 2)
	return &Indicators{
		Symbol:   symbol,
		Interval: interval,
		SMA20:    align(times, indicator.SMA(closes, 20)),
		EMA12:    align(times, indicator.EMA(closes, 12)),
		EMA26:    align(times, indicator.EMA(closes, 26)),
		RSI14:    align(times, indicator.RSI(closes, 14)),
		MACD:     align(times, macd.MACD),
		Signal:   align(times, macd.Signal),
		BBUpper:  align(times, bands.Upper),
		BBMiddle: align(times, bands.Middle),
		BBLower:  align(times, bands.Lower),
		ATR14:    align(times, indicator.ATR(high, low, closes, 14)),
	}
}

// Multi returns close prices per symbol rebased to 100 at the first bar,
// for comparing symbols on one chart. Symbols that fail are logged and skipped.
func (s *Service) Multi(ctx context.Context, symbols []string, interval string, limit int) (map[string][]Point, error) {
	if len(symbols) == 0 {
		return nil, core.Errorf(core.ErrInvalidRequest, "at least one symbol is required")
	}
	if len(symbols) > MaxSymbols {
		return nil, core.Errorf(core.ErrInvalidRequest, "at most %d symbols", MaxSymbols)
	}

	out := make(map[string][]Point, len(symbols))
	for _, raw := range symbols {
		symbol, iv, lim, err := normalize(raw, interval, limit)
		if err != nil {
			continue
		}
		bars, err := s.klines(ctx, symbol, iv, lim)
		if err != nil {
			s.logger.Warn("multi chart symbol skipped", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		base := bars[0].Close
		points := make([]Point, 0, len(bars))
		for _, b := range bars {
			v := 0.0
			if base > 0 {
				v = b.Close * 100 / base
			}
			points = append(points, Point{Time: b.Time.Unix(), Value: v})
		}
		out[symbol] = points
	}
	if len(out) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no data for %s", strings.Join(symbols, ","))
	}
	return out, nil
}
