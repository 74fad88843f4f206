// Package analytics computes performance reports over routed signals and trades.
package analytics

import (
	"context"
	"slices"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/storage/signal"
	"github.com/newthinker/tradebot/internal/trade"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultDays is the reporting period when none is given.
const DefaultDays = 30

// Performance is the headline report for a period.
type Performance struct {
	PeriodDays       int     `json:"period_days"`
	TotalSignals     int     `json:"total_signals"`
	BuySignals       int     `json:"buy_signals"`
	SellSignals      int     `json:"sell_signals"`
	SuccessfulTrades int     `json:"successful_trades"`
	FailedTrades     int     `json:"failed_trades"`
	TotalPnL         float64 `json:"total_pnl"`
	WinRate          float64 `json:"win_rate"`
}

// Breakdown groups closed trades by one dimension.
type Breakdown struct {
	Signals int     `json:"signals"`
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
	PnL     float64 `json:"pnl"`
}

// EquityPoint is the account equity after a trade closed.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// TradeRef identifies a notable trade.
type TradeRef struct {
	ID       string  `json:"id"`
	Symbol   string  `json:"symbol"`
	Strategy string  `json:"strategy,omitempty"`
	PnL      float64 `json:"pnl"`
}

// Detailed extends Performance with breakdowns and risk figures.
type Detailed struct {
	Performance
	ByStrategy        map[string]Breakdown `json:"by_strategy"`
	BySymbol          map[string]Breakdown `json:"by_symbol"`
	EquityCurve       []EquityPoint        `json:"equity_curve"`
	BestTrade         *TradeRef            `json:"best_trade,omitempty"`
	WorstTrade        *TradeRef            `json:"worst_trade,omitempty"`
	AvgHoldingSeconds float64              `json:"avg_holding_seconds"`
	ProfitFactor      float64              `json:"profit_factor"`
	MaxDrawdown       float64              `json:"max_drawdown"` // percent
	SharpeRatio       float64              `json:"sharpe_ratio"`
}

// Dashboard is the summary shown on the dashboard.
type Dashboard struct {
	Performance
	OpenPositions int     `json:"open_positions"`
	TradesToday   int     `json:"trades_today"`
	PnLToday      float64 `json:"pnl_today"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func closedSince(trades []trade.Trade, since time.Time) []trade.Trade {
	out := make([]trade.Trade, 0, len(trades))
	for _, t := range trades {
		if t.IsOpen() || t.ClosedAt == nil || t.ClosedAt.Before(since) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b trade.Trade) int { return a.ClosedAt.Compare(*b.ClosedAt) })
	return out
}

// ComputePerformance reports signals generated and trades closed within days of now.
func ComputePerformance(signals []core.Signal, trades []trade.Trade, days int, now time.Time) Performance {
	if days <= 0 {
		days = DefaultDays
	}
	since := now.AddDate(0, 0, -days)
	p := Performance{PeriodDays: days}
	for _, s := range signals {
		if s.GeneratedAt.Before(since) {
			continue
		}
		p.TotalSignals++
		switch {
		case s.Action.IsBuy():
			p.BuySignals++
		case s.Action.IsSell():
			p.SellSignals++
		}
	}

	total := decimal.Zero
	for _, t := range closedSince(trades, since) {
		if t.PnL > 0 {
			p.SuccessfulTrades++
		} else {
			p.FailedTrades++
		}
		total = total.Add(decimal.NewFromFloat(t.PnL))
	}
	p.TotalPnL = total.Round(2).InexactFloat64()
	if n := p.SuccessfulTrades + p.FailedTrades; n > 0 {
		p.WinRate = round2(float64(p.SuccessfulTrades) / float64(n) * 100)
	}
	return p
}

func addTrade(m map[string]Breakdown, key string, t trade.Trade) {
	b := m[key]
	b.Trades++
	if t.PnL > 0 {
		b.Wins++
	}
	b.PnL = decimal.NewFromFloat(b.PnL).Add(decimal.NewFromFloat(t.PnL)).Round(2).InexactFloat64()
	b.WinRate = round2(float64(b.Wins) / float64(b.Trades) * 100)
	m[key] = b
}

// ComputeDetailed builds the detailed report. initialCapital anchors the equity curve.
func ComputeDetailed(signals []core.Signal, trades []trade.Trade, initialCapital float64, days int, now time.Time) Detailed {
	d := Detailed{
		Performance: ComputePerformance(signals, trades, days, now),
		ByStrategy:  map[string]Breakdown{},
		BySymbol:    map[string]Breakdown{},
		EquityCurve: []EquityPoint{},
	}
	since := now.AddDate(0, 0, -d.PeriodDays)

	for _, s := range signals {
		if s.GeneratedAt.Before(since) {
			continue
		}
		strat := d.ByStrategy[s.Strategy]
		strat.Signals++
		d.ByStrategy[s.Strategy] = strat
		sym := d.BySymbol[s.Symbol]
		sym.Signals++
		d.BySymbol[s.Symbol] = sym
	}

	closed := closedSince(trades, since)
	if len(closed) == 0 {
		return d
	}

	equity := decimal.NewFromFloat(initialCapital)
	curve := []float64{initialCapital}
	returns := make([]float64, 0, len(closed))
	var holding time.Duration
	var best, worst trade.Trade
	for i, t := range closed {
		strategy := t.Strategy
		if strategy == "" {
			strategy = "manual"
		}
		addTrade(d.ByStrategy, strategy, t)
		addTrade(d.BySymbol, t.Symbol, t)

		equity = equity.Add(decimal.NewFromFloat(t.PnL))
		e := equity.Round(2).InexactFloat64()
		d.EquityCurve = append(d.EquityCurve, EquityPoint{Time: *t.ClosedAt, Equity: e})
		curve = append(curve, e)
		returns = append(returns, t.PnLPercent/100)
		holding += t.ClosedAt.Sub(t.CreatedAt)

		if i == 0 || t.PnL > best.PnL {
			best = t
		}
		if i == 0 || t.PnL < worst.PnL {
			worst = t
		}
	}

	d.BestTrade = &TradeRef{ID: best.ID, Symbol: best.Symbol, Strategy: best.Strategy, PnL: best.PnL}
	d.WorstTrade = &TradeRef{ID: worst.ID, Symbol: worst.Symbol, Strategy: worst.Strategy, PnL: worst.PnL}
	d.AvgHoldingSeconds = round2(holding.Seconds() / float64(len(closed)))
	d.ProfitFactor = round2(profitFactor(closed))
	d.MaxDrawdown = round2(MaxDrawdown(curve) * 100)
	d.SharpeRatio = round2(SharpeRatio(returns))
	return d
}

// TradeSource exposes the trades the reports are built from and the capital
// the account started with.
type TradeSource interface {
	All() []trade.Trade
	Active() []trade.Trade
	InitialCapital() float64
}

// Service reads from the signal store and trade manager.
type Service struct {
	signals signal.Store
	trades  TradeSource
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates an analytics service.
func NewService(signals signal.Store, trades TradeSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		signals: signals,
		trades:  trades,
		logger:  logger.Named("analytics"),
		now:     time.Now,
	}
}

func (s *Service) load(ctx context.Context, since time.Time) ([]core.Signal, []trade.Trade, error) {
	sigs, err := s.signals.List(ctx, signal.ListFilter{From: since})
	if err != nil {
		return nil, nil, err
	}
	return sigs, s.trades.All(), nil
}

// Performance reports the last days.
func (s *Service) Performance(ctx context.Context, days int) (Performance, error) {
	if days <= 0 {
		days = DefaultDays
	}
	now := s.now()
	sigs, trades, err := s.load(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return Performance{}, err
	}
	return ComputePerformance(sigs, trades, days, now), nil
}

// Detailed reports the last days with breakdowns.
func (s *Service) Detailed(ctx context.Context, days int) (Detailed, error) {
	if days <= 0 {
		days = DefaultDays
	}
	now := s.now()
	sigs, trades, err := s.load(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return Detailed{}, err
	}
	return ComputeDetailed(sigs, trades, s.trades.InitialCapital(), days, now), nil
}

// Dashboard combines the 30 day performance with today's activity.
func (s *Service) Dashboard(ctx context.Context, uptime time.Duration) (Dashboard, error) {
	perf, err := s.Performance(ctx, DefaultDays)
	if err != nil {
		return Dashboard{}, err
	}
	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	d := Dashboard{
		Performance:   perf,
		OpenPositions: len(s.trades.Active()),
		UptimeSeconds: uptime.Seconds(),
	}
	today := decimal.Zero
	for _, t := range closedSince(s.trades.All(), midnight) {
		d.TradesToday++
		today = today.Add(decimal.NewFromFloat(t.PnL))
	}
	d.PnLToday = today.Round(2).InexactFloat64()
	return d, nil
}
