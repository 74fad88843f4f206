package order_book_analysis

import (
	"math"
	"testing"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/strategy"
)

func levels(start, step float64, n int, size float64) []core.Level {
	out := make([]core.Level, n)
	for i := range out {
		out[i] = core.Level{Price: start + step*float64(i), Size: size}
	}
	return out
}

func TestOrderBookAnalysis_Wall(t *testing.T) {
	s := New()
	ctx := strategy.AnalysisContext{
		Symbol: "BTCUSDT",
		OrderBook: &core.OrderBook{
			Bids: []core.Level{{Price: 100, Size: 60}},
			Asks: []core.Level{{Price: 101, Size: 40}},
		},
		Now: time.Now(),
	}

	signals, err := s.Analyze(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Action != core.ActionSell {
		t.Errorf("bid wall should be SELL, got %s", signals[0].Action)
	}
	if signals[0].Metadata["pattern"] != "order_book_walls" {
		t.Errorf("unexpected pattern %v", signals[0].Metadata["pattern"])
	}
	if signals[0].Price != 100.5 {
		t.Errorf("expected mid price, got %f", signals[0].Price)
	}
}

func TestOrderBookAnalysis_ImbalanceWhenNoWall(t *testing.T) {
	s := New()
	ctx := strategy.AnalysisContext{
		Symbol: "BTCUSDT",
		OrderBook: &core.OrderBook{
			Bids: levels(100, -0.1, 20, 3),
			Asks: levels(100.1, 0.1, 20, 1),
		},
	}

	signals, _ := s.Analyze(ctx)
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Action != core.ActionBuy {
		t.Errorf("expected BUY on bid-heavy book, got %s", signals[0].Action)
	}
	if signals[0].Metadata["pattern"] != "order_book_imbalance" {
		t.Errorf("unexpected pattern %v", signals[0].Metadata["pattern"])
	}
	if signals[0].Confidence != 1.0 {
		t.Errorf("expected full strength, got %f", signals[0].Confidence)
	}
}

func TestOrderBookAnalysis_BalancedBookNoSignal(t *testing.T) {
	ctx := strategy.AnalysisContext{
		OrderBook: &core.OrderBook{
			Bids: levels(100, -0.1, 30, 1),
			Asks: levels(100.1, 0.1, 30, 1),
		},
	}
	signals, _ := New().Analyze(ctx)
	if len(signals) != 0 {
		t.Errorf("expected no signal, got %+v", signals)
	}
}

func TestDetectSpoofing(t *testing.T) {
	s := New()
	now := time.Now()
	snaps := []strategy.BookSnapshot{
		{
			Book: core.OrderBook{
				Bids: []core.Level{{Price: 100, Size: 10}, {Price: 99, Size: 1}},
				Asks: []core.Level{{Price: 101, Size: 9}},
			},
			At: now.Add(-time.Minute),
		},
		{
			Book: core.OrderBook{
				Bids: []core.Level{{Price: 99, Size: 1}},
				Asks: []core.Level{{Price: 101, Size: 9}},
			},
			At: now,
		},
	}

	p := s.DetectSpoofing(snaps)
	if p == nil {
		t.Fatal("expected spoofing pattern")
	}
	if p.Action != core.ActionSell {
		t.Errorf("vanished bids should read SELL, got %s", p.Action)
	}
	if math.Abs(p.Strength-0.5) > 1e-9 {
		t.Errorf("expected strength 0.5, got %f", p.Strength)
	}

	// outside the window
	snaps[0].At = now.Add(-10 * time.Minute)
	if s.DetectSpoofing(snaps) != nil {
		t.Error("expected no spoofing outside the time window")
	}
}

func TestDetectAbsorption(t *testing.T) {
	s := New()
	bids := []float64{30, 31, 30, 31, 30, 10}
	snaps := make([]strategy.BookSnapshot, len(bids))
	for i, b := range bids {
		snaps[i] = strategy.BookSnapshot{Book: core.OrderBook{
			Bids: []core.Level{{Price: 100, Size: b}},
			Asks: []core.Level{{Price: 101, Size: 10}},
		}}
	}

	p := s.DetectAbsorption(snaps)
	if p == nil {
		t.Fatal("expected absorption pattern")
	}
	if p.Action != core.ActionSell {
		t.Errorf("consumed bids should read SELL, got %s", p.Action)
	}
	if p.Strength != 1.0 {
		t.Errorf("expected capped strength, got %f", p.Strength)
	}

	if s.DetectAbsorption(snaps[:2]) != nil {
		t.Error("expected nil with fewer than 3 snapshots")
	}
}

func TestInit_InvalidImbalance(t *testing.T) {
	err := New().Init(strategy.Config{Params: map[string]any{"imbalance_threshold": 1.0}})
	if err == nil {
		t.Error("expected error for imbalance_threshold <= 1")
	}
}
