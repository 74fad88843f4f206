package analytics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/storage/signal"
	"github.com/newthinker/tradebot/internal/trade"
)

var now = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

func closedTrade(id, symbol, strategy string, pnl, pct float64, closedAgo time.Duration) trade.Trade {
	closed := now.Add(-closedAgo)
	return trade.Trade{
		ID:         id,
		Symbol:     symbol,
		Strategy:   strategy,
		Status:     trade.StatusClosed,
		PnL:        pnl,
		PnLPercent: pct,
		CreatedAt:  closed.Add(-time.Hour),
		ClosedAt:   &closed,
	}
}

func fixture() ([]core.Signal, []trade.Trade) {
	signals := []core.Signal{
		{Symbol: "BTCUSDT", Strategy: "aggregator", Action: core.ActionBuy, GeneratedAt: now.Add(-time.Hour)},
		{Symbol: "BTCUSDT", Strategy: "aggregator", Action: core.ActionStrongSell, GeneratedAt: now.Add(-2 * time.Hour)},
		{Symbol: "ETHUSDT", Strategy: "aggregator", Action: core.ActionNeutral, GeneratedAt: now.Add(-3 * time.Hour)},
		{Symbol: "ETHUSDT", Strategy: "aggregator", Action: core.ActionBuy, GeneratedAt: now.AddDate(0, 0, -40)},
	}
	trades := []trade.Trade{
		closedTrade("t1", "BTCUSDT", "momentum", 100, 10, 48*time.Hour),
		closedTrade("t2", "ETHUSDT", "whale_hunting", -50, -5, 24*time.Hour),
		closedTrade("t3", "BTCUSDT", "momentum", 30, 3, 2*time.Hour),
		closedTrade("old", "BTCUSDT", "momentum", 999, 50, 60*24*time.Hour),
		{ID: "open", Symbol: "SOLUSDT", Status: trade.StatusOpen, CreatedAt: now},
	}
	return signals, trades
}

func TestComputePerformance(t *testing.T) {
	signals, trades := fixture()
	p := ComputePerformance(signals, trades, 30, now)

	if p.PeriodDays != 30 {
		t.Errorf("expected 30 days, got %d", p.PeriodDays)
	}
	if p.TotalSignals != 3 || p.BuySignals != 1 || p.SellSignals != 1 {
		t.Errorf("unexpected signal counts: %+v", p)
	}
	if p.SuccessfulTrades != 2 || p.FailedTrades != 1 {
		t.Errorf("unexpected trade counts: %+v", p)
	}
	if p.TotalPnL != 80 {
		t.Errorf("expected total pnl 80, got %f", p.TotalPnL)
	}
	if p.WinRate != 66.67 {
		t.Errorf("expected win rate 66.67, got %f", p.WinRate)
	}
}

func TestComputePerformance_DefaultDays(t *testing.T) {
	if p := ComputePerformance(nil, nil, 0, now); p.PeriodDays != DefaultDays {
		t.Errorf("expected default period, got %d", p.PeriodDays)
	}
}

func TestComputeDetailed(t *testing.T) {
	signals, trades := fixture()
	d := ComputeDetailed(signals, trades, 1000, 30, now)

	if got := d.ByStrategy["momentum"]; got.Trades != 2 || got.Wins != 2 || got.PnL != 130 {
		t.Errorf("unexpected momentum breakdown: %+v", got)
	}
	if got := d.BySymbol["ETHUSDT"]; got.Trades != 1 || got.Signals != 1 || got.WinRate != 0 {
		t.Errorf("unexpected ETHUSDT breakdown: %+v", got)
	}
	if len(d.EquityCurve) != 3 {
		t.Fatalf("expected 3 equity points, got %d", len(d.EquityCurve))
	}
	if last := d.EquityCurve[2].Equity; last != 1080 {
		t.Errorf("expected final equity 1080, got %f", last)
	}
	if d.BestTrade == nil || d.BestTrade.ID != "t1" {
		t.Errorf("expected best trade t1, got %+v", d.BestTrade)
	}
	if d.WorstTrade == nil || d.WorstTrade.ID != "t2" {
		t.Errorf("expected worst trade t2, got %+v", d.WorstTrade)
	}
	if d.AvgHoldingSeconds != 3600 {
		t.Errorf("expected avg holding 3600s, got %f", d.AvgHoldingSeconds)
	}
	if d.ProfitFactor != 2.6 {
		t.Errorf("expected profit factor 2.6, got %f", d.ProfitFactor)
	}
	// peak 1100 -> 1050
	if d.MaxDrawdown != 4.55 {
		t.Errorf("expected max drawdown 4.55, got %f", d.MaxDrawdown)
	}
}

func TestMaxDrawdown(t *testing.T) {
	if got := MaxDrawdown([]float64{100, 120, 90, 130}); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("expected 0.25, got %f", got)
	}
	if got := MaxDrawdown(nil); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestSharpeRatio_NeedsTwoReturns(t *testing.T) {
	if got := SharpeRatio([]float64{0.1}); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
	if got := SharpeRatio([]float64{0.1, 0.1}); got != 0 {
		t.Errorf("zero variance must give 0, got %f", got)
	}
}

type tradeList []trade.Trade

func (l tradeList) All() []trade.Trade { return l }

func (l tradeList) InitialCapital() float64 { return 1000 }

func (l tradeList) Active() []trade.Trade {
	var out []trade.Trade
	for _, t := range l {
		if t.IsOpen() {
			out = append(out, t)
		}
	}
	return out
}

// seeded reports a different starting capital than tradeList.
type seeded struct {
	tradeList
	capital float64
}

func (s seeded) InitialCapital() float64 { return s.capital }

func TestService_DetailedUsesSourceCapital(t *testing.T) {
	_, trades := fixture()
	store := signal.NewMemoryStore(100, nil)
	svc := NewService(store, seeded{tradeList: trades, capital: 5000}, nil)
	svc.now = func() time.Time { return now }

	d, err := svc.Detailed(context.Background(), 30)
	if err != nil {
		t.Fatalf("detailed: %v", err)
	}
	if len(d.EquityCurve) == 0 {
		t.Fatal("expected equity points")
	}
	if last := d.EquityCurve[len(d.EquityCurve)-1].Equity; last != 5080 {
		t.Errorf("equity should start from the source capital, got final %f", last)
	}
}

func TestService_Dashboard(t *testing.T) {
	signals, trades := fixture()
	store := signal.NewMemoryStore(100, nil)
	for _, s := range signals {
		if _, err := store.Save(context.Background(), s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	svc := NewService(store, tradeList(trades), nil)
	svc.now = func() time.Time { return now }

	d, err := svc.Dashboard(context.Background(), 90*time.Second)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.OpenPositions != 1 {
		t.Errorf("expected 1 open position, got %d", d.OpenPositions)
	}
	if d.TradesToday != 1 || d.PnLToday != 30 {
		t.Errorf("expected one trade today worth 30, got %d / %f", d.TradesToday, d.PnLToday)
	}
	if d.UptimeSeconds != 90 {
		t.Errorf("expected uptime 90, got %f", d.UptimeSeconds)
	}
	if d.TotalSignals != 3 {
		t.Errorf("expected 3 signals in period, got %d", d.TotalSignals)
	}
}
