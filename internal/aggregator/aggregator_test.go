package aggregator

import (
	"math"
	"testing"
	"time"

	"github.com/newthinker/tradebot/internal/core"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sig(strategy string, action core.Action, conf float64) core.Signal {
	return core.Signal{
		Symbol:      "BTCUSDT",
		Strategy:    strategy,
		Action:      action,
		Confidence:  conf,
		Price:       50000,
		GeneratedAt: now.Add(-10 * time.Second),
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-3 }

func TestAggregate_SingleStrongSignal(t *testing.T) {
	a := New(nil, 0, nil)
	out, ok := a.Aggregate("BTCUSDT", []core.Signal{sig("whale_hunting", core.ActionBuy, 0.9)}, now)
	if !ok {
		t.Fatal("expected aggregated signal")
	}
	if out.Action != core.ActionStrongBuy {
		t.Errorf("expected STRONG_BUY, got %s", out.Action)
	}
	// diff 1.0, priority 8 -> 0.9
	if !near(out.Confidence, 0.9) {
		t.Errorf("expected confidence 0.9, got %f", out.Confidence)
	}
	if out.Strategy != StrategyName {
		t.Errorf("expected strategy %q, got %q", StrategyName, out.Strategy)
	}
	if out.Price != 50000 {
		t.Errorf("expected price from best signal, got %f", out.Price)
	}
}

func TestAggregate_MajorityBuy(t *testing.T) {
	a := New(nil, 0, nil)
	signals := []core.Signal{
		sig("whale_hunting", core.ActionBuy, 0.9),
		sig("sleeping_giants", core.ActionBuy, 0.8),
		sig("momentum", core.ActionSell, 0.5),
	}
	out, ok := a.Aggregate("BTCUSDT", signals, now)
	if !ok {
		t.Fatal("expected aggregated signal")
	}
	if out.Action != core.ActionBuy {
		t.Errorf("expected BUY, got %s", out.Action)
	}
	if !near(out.Confidence, 0.5589) {
		t.Errorf("expected confidence ~0.559, got %f", out.Confidence)
	}
	if out.Metadata["buy_signals"] != 2 || out.Metadata["sell_signals"] != 1 {
		t.Errorf("unexpected counts: %v", out.Metadata)
	}
	contribs, _ := out.Metadata["strategy_contributions"].([]Contribution)
	if len(contribs) != 3 || contribs[0].Strategy != "whale_hunting" {
		t.Errorf("expected contributions sorted by weight, got %+v", contribs)
	}
}

func TestAggregate_ConflictIsDropped(t *testing.T) {
	a := New(nil, 0, nil)
	signals := []core.Signal{
		sig("whale_hunting", core.ActionBuy, 0.8),
		sig("sleeping_giants", core.ActionSell, 0.8),
	}
	if out, ok := a.Aggregate("BTCUSDT", signals, now); ok {
		t.Errorf("expected weak neutral to be dropped, got %+v", out)
	}
}

func TestAggregate_Filters(t *testing.T) {
	a := New(nil, 0, nil)

	low := sig("momentum", core.ActionBuy, 0.3)
	if _, ok := a.Aggregate("BTCUSDT", []core.Signal{low}, now); ok {
		t.Error("expected signal below min confidence to be ignored")
	}

	stale := sig("whale_hunting", core.ActionBuy, 0.9)
	stale.GeneratedAt = now.Add(-2 * time.Minute)
	if _, ok := a.Aggregate("BTCUSDT", []core.Signal{stale}, now); ok {
		t.Error("expected signal outside window to be ignored")
	}

	other := sig("whale_hunting", core.ActionBuy, 0.9)
	other.Symbol = "ETHUSDT"
	if _, ok := a.Aggregate("BTCUSDT", []core.Signal{other}, now); ok {
		t.Error("expected other symbol to be ignored")
	}

	if _, ok := a.Aggregate("BTCUSDT", nil, now); ok {
		t.Error("expected no signal for empty input")
	}
}

func TestAggregate_UnknownStrategyUsesFallback(t *testing.T) {
	a := New(nil, 0, nil)
	if got := a.Profile("custom"); got != FallbackProfile {
		t.Errorf("expected fallback profile, got %+v", got)
	}
	out, ok := a.Aggregate("BTCUSDT", []core.Signal{sig("custom", core.ActionSell, 0.6)}, now)
	if !ok {
		t.Fatal("expected aggregated signal")
	}
	// diff -1, priority 5 -> 0.75
	if out.Action != core.ActionStrongSell || !near(out.Confidence, 0.75) {
		t.Errorf("expected STRONG_SELL 0.75, got %s %f", out.Action, out.Confidence)
	}
}

func TestSetWeights(t *testing.T) {
	a := New(nil, 0, nil)
	a.SetWeights(map[string]float64{"whale_hunting": 0, "momentum": -1})

	if a.Profile("whale_hunting").Weight != 0 {
		t.Error("expected whale weight to be zero")
	}
	if a.Profile("momentum").Weight != 0.8 {
		t.Error("negative weights must be ignored")
	}
	if a.Profile("whale_hunting").Priority != 8 {
		t.Error("SetWeights must keep the other profile fields")
	}
	if _, ok := a.Aggregate("BTCUSDT", []core.Signal{sig("whale_hunting", core.ActionBuy, 0.9)}, now); ok {
		t.Error("zero-weight strategy must not produce a signal")
	}
}

func TestSummarize(t *testing.T) {
	a := New(nil, 0, nil)

	tests := []struct {
		name       string
		votes      []Vote
		wantAction core.Action
		wantConf   float64
	}{
		{"empty", nil, core.ActionNeutral, 0},
		{"single strong buy", []Vote{{"whale_hunting", core.ActionBuy, 0.8}}, core.ActionStrongBuy, 0.8},
		{"single buy", []Vote{{"whale_hunting", core.ActionBuy, 0.6}}, core.ActionBuy, 0.6},
		{"mixed", []Vote{
			{"momentum", core.ActionBuy, 0.5},
			{"sleeping_giants", core.ActionSell, 0.6},
		}, core.ActionNeutral, 0.3892},
		{"below minimum", []Vote{{"momentum", core.ActionSell, 0.2}}, core.ActionNeutral, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := a.Summarize(tt.votes)
			if s.Action != tt.wantAction {
				t.Errorf("expected %s, got %s", tt.wantAction, s.Action)
			}
			if !near(s.Confidence, tt.wantConf) {
				t.Errorf("expected confidence %f, got %f", tt.wantConf, s.Confidence)
			}
		})
	}
}
