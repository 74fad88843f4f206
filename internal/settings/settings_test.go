package settings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/storage/archive"
)

func seed() Settings {
	return FromConfig(config.Defaults(), map[string]float64{"momentum": 0.8, "whale_hunting": 1.5})
}

func TestFromConfig(t *testing.T) {
	s := seed()
	if s.General.AnalysisIntervalSeconds != 60 || !s.General.Virtual {
		t.Errorf("unexpected general %+v", s.General)
	}
	if s.Risk.MaxPositions != 5 || s.Risk.RiskPerTrade != 0.02 {
		t.Errorf("unexpected risk %+v", s.Risk)
	}
	if len(s.Pairs) != 3 || s.Pairs[0] != "BTCUSDT" {
		t.Errorf("unexpected pairs %v", s.Pairs)
	}
	if s.StrategyWeights["momentum"] != 0.8 {
		t.Errorf("expected default weight, got %v", s.StrategyWeights)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidatePair(t *testing.T) {
	for _, p := range []string{"BTCUSDT", "ETHBTC", "1000PEPEUSDT", "SOLUSDC"} {
		if err := ValidatePair(p); err != nil {
			t.Errorf("%s should be valid: %v", p, err)
		}
	}
	for _, p := range []string{"", "btcusdt", "BTC", "BTCEUR", "BTC-USDT"} {
		if err := ValidatePair(p); err == nil {
			t.Errorf("%s should be invalid", p)
		}
	}
	if NormalizePair(" btc/usdt ") != "BTCUSDT" {
		t.Error("expected normalization")
	}
}

func TestRiskValidate(t *testing.T) {
	base := seed().Risk
	tests := []struct {
		name   string
		mutate func(*Risk)
	}{
		{"zero capital", func(r *Risk) { r.InitialCapital = 0 }},
		{"no positions", func(r *Risk) { r.MaxPositions = 0 }},
		{"too many positions", func(r *Risk) { r.MaxPositions = 101 }},
		{"zero risk", func(r *Risk) { r.RiskPerTrade = 0 }},
		{"risk over 10%", func(r *Risk) { r.RiskPerTrade = 0.11 }},
		{"stop loss over 50", func(r *Risk) { r.StopLossPct = 51 }},
		{"negative take profit", func(r *Risk) { r.TakeProfitPct = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			err := r.Validate()
			if !errors.Is(err, core.ErrInvalidRequest) {
				t.Errorf("expected INVALID_REQUEST, got %v", err)
			}
		})
	}
}

func TestManager_UpdateNotifies(t *testing.T) {
	m := NewManager(seed(), nil, nil)
	var got []Settings
	m.Subscribe(func(s Settings) { got = append(got, s) })

	r := m.Get().Risk
	r.MaxPositions = 8
	if _, err := m.UpdateRisk(r); err != nil {
		t.Fatalf("UpdateRisk: %v", err)
	}
	if len(got) != 1 || got[0].Risk.MaxPositions != 8 {
		t.Fatalf("expected one notification with new value, got %+v", got)
	}

	r.MaxPositions = 0
	if _, err := m.UpdateRisk(r); err == nil {
		t.Fatal("expected validation error")
	}
	if len(got) != 1 {
		t.Error("invalid updates must not notify")
	}
	if m.Get().Risk.MaxPositions != 8 {
		t.Error("invalid update must not change state")
	}
}

func TestManager_NotifiesInCommitOrder(t *testing.T) {
	m := NewManager(seed(), nil, nil)
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var mu sync.Mutex
	var seen []int
	m.Subscribe(func(s Settings) {
		entered <- struct{}{}
		if s.Risk.MaxPositions == 7 {
			<-release
		}
		mu.Lock()
		seen = append(seen, s.Risk.MaxPositions)
		mu.Unlock()
	})

	first := make(chan error, 1)
	go func() {
		_, err := m.Update("max_positions", 7)
		first <- err
	}()
	<-entered

	second := make(chan error, 1)
	go func() {
		_, err := m.Update("max_positions", 9)
		second <- err
	}()

	select {
	case <-second:
		t.Fatal("second change completed while the first was still being delivered")
	case <-time.After(50 * time.Millisecond):
	}
	if got := m.Get().Risk.MaxPositions; got != 7 {
		t.Errorf("second change committed early: max_positions=%d", got)
	}

	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second update: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 7 || seen[1] != 9 {
		t.Errorf("expected notifications [7 9], got %v", seen)
	}
	if got := m.Get().Risk.MaxPositions; got != 9 {
		t.Errorf("expected final value 9, got %d", got)
	}
}

func TestManager_GuardRejects(t *testing.T) {
	m := NewManager(seed(), nil, nil)
	notified := 0
	m.Subscribe(func(Settings) { notified++ })
	m.AddGuard(func(prev, next Settings) error {
		if next.Risk.InitialCapital != prev.Risk.InitialCapital {
			return core.Errorf(core.ErrInvalidRequest, "initial capital is locked")
		}
		return nil
	})
	before := m.Get().Risk.InitialCapital

	if _, err := m.Update("initial_capital", before*5); !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
	if got := m.Get().Risk.InitialCapital; got != before {
		t.Errorf("rejected change must not commit, got %f", got)
	}
	if notified != 0 {
		t.Errorf("rejected change must not notify, got %d", notified)
	}

	if _, err := m.Update("max_positions", 4); err != nil {
		t.Fatalf("unguarded change: %v", err)
	}
	if notified != 1 {
		t.Errorf("expected one notification, got %d", notified)
	}
}

func TestManager_UpdateByKey(t *testing.T) {
	m := NewManager(seed(), nil, nil)

	tests := []struct {
		key   string
		value any
		check func(Settings) bool
	}{
		{"general.auto_trade", true, func(s Settings) bool { return s.General.AutoTrade }},
		{"risk.max_positions", float64(7), func(s Settings) bool { return s.Risk.MaxPositions == 7 }},
		{"stop_loss_pct", "3.5", func(s Settings) bool { return s.Risk.StopLossPct == 3.5 }},
		{"strategy_weights.momentum", 1.1, func(s Settings) bool { return s.StrategyWeights["momentum"] == 1.1 }},
		{"pairs", []any{"btcusdt", "ETH/USDT"}, func(s Settings) bool { return strings.Join(s.Pairs, ",") == "BTCUSDT,ETHUSDT" }},
		{"trading_pairs", "SOLUSDT, XRPUSDT", func(s Settings) bool { return len(s.Pairs) == 2 && s.Pairs[1] == "XRPUSDT" }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s, err := m.Update(tt.key, tt.value)
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if !tt.check(s) {
				t.Errorf("unexpected settings after %s=%v: %+v", tt.key, tt.value, s)
			}
		})
	}

	if _, err := m.Update("nope", 1); !errors.Is(err, core.ErrInvalidRequest) {
		t.Errorf("expected unknown key error, got %v", err)
	}
	if _, err := m.Update("max_positions", "many"); err == nil {
		t.Error("expected type error")
	}
}

func TestManager_BulkUpdateIsAtomic(t *testing.T) {
	m := NewManager(seed(), nil, nil)

	_, err := m.BulkUpdate(map[string]any{
		"risk.max_positions": 9,
		"risk_per_trade":     0.5,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if m.Get().Risk.MaxPositions != 5 {
		t.Error("failed batch must not apply partially")
	}

	s, err := m.BulkUpdate(map[string]any{"max_positions": 9, "auto_trade": "true"})
	if err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if s.Risk.MaxPositions != 9 || !s.General.AutoTrade {
		t.Errorf("unexpected %+v", s)
	}
}

func TestManager_Pairs(t *testing.T) {
	m := NewManager(seed(), nil, nil)

	if _, err := m.AddPair("xrpusdt"); err != nil {
		t.Fatalf("AddPair: %v", err)
	}
	if _, err := m.AddPair("XRPUSDT"); err == nil {
		t.Error("expected duplicate error")
	}
	if _, err := m.AddPair("XRPEUR"); err == nil {
		t.Error("expected invalid pair error")
	}
	if _, err := m.RemovePair("BTCUSDT"); err != nil {
		t.Fatalf("RemovePair: %v", err)
	}
	if _, err := m.RemovePair("DOGEUSDT"); !errors.Is(err, core.ErrSymbolNotFound) {
		t.Errorf("expected SYMBOL_NOT_FOUND, got %v", err)
	}
	if got := strings.Join(m.Pairs(), ","); got != "ETHUSDT,SOLUSDT,XRPUSDT" {
		t.Errorf("unexpected pairs %s", got)
	}

	if _, err := m.SetPairs([]string{"adausdt"}); err != nil {
		t.Fatalf("SetPairs: %v", err)
	}
	if got := m.Pairs(); len(got) != 1 || got[0] != "ADAUSDT" {
		t.Errorf("unexpected pairs %v", got)
	}

	if _, err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(m.Pairs()) != 3 {
		t.Errorf("expected defaults after reset, got %v", m.Pairs())
	}
}

func TestManager_ExportImport(t *testing.T) {
	store, err := archive.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	ctx := context.Background()
	m := NewManager(seed(), store, nil)
	m.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }

	if _, err := m.Update("max_positions", 3); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, err := m.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if doc.Version != DocumentVersion || doc.Settings.Risk.MaxPositions != 3 {
		t.Errorf("unexpected document %+v", doc)
	}
	paths, _ := store.List(ctx, ExportPrefix)
	if len(paths) != 1 {
		t.Fatalf("expected one archived export, got %v", paths)
	}

	if _, err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	s, err := m.ImportLatest(ctx)
	if err != nil {
		t.Fatalf("ImportLatest: %v", err)
	}
	if s.Risk.MaxPositions != 3 {
		t.Errorf("expected imported value, got %d", s.Risk.MaxPositions)
	}

	if _, err := m.Import([]byte(`{"general":{"analysis_interval_seconds":30},"risk":{"initial_capital":500,"max_positions":2,"risk_per_trade":0.01,"stop_loss_pct":1,"take_profit_pct":2},"pairs":["btcusdt"]}`)); err != nil {
		t.Fatalf("bare import: %v", err)
	}
	if got := m.Get(); got.Risk.InitialCapital != 500 || got.Pairs[0] != "BTCUSDT" {
		t.Errorf("unexpected bare import result %+v", got)
	}

	if _, err := m.Import([]byte(`{"version":99,"settings":{}}`)); err == nil {
		t.Error("expected version error")
	}
	if _, err := m.Import([]byte(`not json`)); !errors.Is(err, core.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}
