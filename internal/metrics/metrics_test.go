package metrics

import (
	"testing"

	"github.com/newthinker/tradebot/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}
}

func TestRegistry_HTTPMetrics(t *testing.T) {
	reg := NewRegistry()

	// Verify HTTP metrics are registered
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	// Should have go runtime metrics at minimum
	if len(mfs) == 0 {
		t.Error("expected some metrics to be registered")
	}
}

func TestRegistry_RecordRequest(t *testing.T) {
	reg := NewRegistry()

	reg.RecordRequest("GET", "/api/signals/latest", 200, 0.05)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "http_requests_total" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected http_requests_total metric")
	}
}

func TestRegistry_RecordRequest_StatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			reg := NewRegistry()
			reg.RecordRequest("GET", "/test", tt.status, 0.01)

			mfs, err := reg.Gather()
			if err != nil {
				t.Fatalf("gather failed: %v", err)
			}

			found := false
			for _, mf := range mfs {
				if mf.GetName() == "http_requests_total" {
					for _, m := range mf.GetMetric() {
						for _, label := range m.GetLabel() {
							if label.GetName() == "status" && label.GetValue() == tt.expected {
								found = true
							}
						}
					}
				}
			}
			if !found {
				t.Errorf("expected status label %s for status code %d", tt.expected, tt.status)
			}
		})
	}
}

func TestRegistry_InFlight(t *testing.T) {
	reg := NewRegistry()

	reg.InFlightInc()
	reg.InFlightInc()
	reg.InFlightDec()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "http_requests_in_flight" {
			found = true
			for _, m := range mf.GetMetric() {
				if m.GetGauge().GetValue() != 1 {
					t.Errorf("expected in-flight gauge to be 1, got %v", m.GetGauge().GetValue())
				}
			}
		}
	}
	if !found {
		t.Error("expected http_requests_in_flight metric")
	}
}

func TestRegistry_DurationHistogram(t *testing.T) {
	reg := NewRegistry()

	reg.RecordRequest("POST", "/api/trades/virtual", 200, 0.123)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "http_request_duration_seconds" {
			found = true
			for _, m := range mf.GetMetric() {
				hist := m.GetHistogram()
				if hist.GetSampleCount() != 1 {
					t.Errorf("expected sample count 1, got %d", hist.GetSampleCount())
				}
				if hist.GetSampleSum() < 0.12 || hist.GetSampleSum() > 0.13 {
					t.Errorf("expected sample sum ~0.123, got %v", hist.GetSampleSum())
				}
			}
		}
	}
	if !found {
		t.Error("expected http_request_duration_seconds metric")
	}
}

// Ensure the registry implements prometheus.Gatherer interface
func TestRegistry_ImplementsGatherer(t *testing.T) {
	reg := NewRegistry()
	var _ prometheus.Gatherer = reg
}

func gatherValue(t *testing.T, reg *Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, l := range m.GetLabel() {
				if want, ok := labels[l.GetName()]; ok && want != l.GetValue() {
					match = false
				}
			}
			if !match {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func TestRegistry_BotMetrics(t *testing.T) {
	reg := NewRegistry()

	reg.RecordSignal("momentum", "BUY")
	reg.RecordSignal("momentum", "BUY")
	reg.RecordAggregated("STRONG_BUY")
	reg.RecordRouted("STRONG_BUY")
	reg.RecordAnalysisCycle(0.2)
	reg.RecordTradeOpened("BUY")
	reg.RecordTradeClosed("take_profit")
	reg.SetPortfolio(3, 10250.5)

	if v := gatherValue(t, reg, "tradebot_signals_generated_total", map[string]string{"strategy": "momentum"}); v != 2 {
		t.Errorf("expected 2 generated signals, got %v", v)
	}
	if v := gatherValue(t, reg, "tradebot_signals_aggregated_total", nil); v != 1 {
		t.Errorf("expected 1 aggregated signal, got %v", v)
	}
	if v := gatherValue(t, reg, "tradebot_analysis_cycles_total", nil); v != 1 {
		t.Errorf("expected 1 cycle, got %v", v)
	}
	if v := gatherValue(t, reg, "tradebot_trades_closed_total", map[string]string{"reason": "take_profit"}); v != 1 {
		t.Errorf("expected 1 closed trade, got %v", v)
	}
	if v := gatherValue(t, reg, "tradebot_open_positions", nil); v != 3 {
		t.Errorf("expected 3 open positions, got %v", v)
	}
	if v := gatherValue(t, reg, "tradebot_portfolio_equity", nil); v != 10250.5 {
		t.Errorf("expected equity 10250.5, got %v", v)
	}
}

func TestRegistry_RealtimeObserver(t *testing.T) {
	reg := NewRegistry()
	var _ realtime.Observer = reg

	reg.ClientsChanged(4)
	reg.MessageSent(realtime.TypePriceUpdate)
	reg.MessageSent(realtime.TypePriceUpdate)

	if v := gatherValue(t, reg, "tradebot_websocket_clients", nil); v != 4 {
		t.Errorf("expected 4 clients, got %v", v)
	}
	if v := gatherValue(t, reg, "tradebot_websocket_messages_sent_total", map[string]string{"type": "price_update"}); v != 2 {
		t.Errorf("expected 2 price updates, got %v", v)
	}
}
