package core

import (
	"testing"
	"time"
)

func TestQuote_IsValid(t *testing.T) {
	q := Quote{Symbol: "BTCUSDT", Price: 64000.5, Time: time.Now()}
	if !q.IsValid() {
		t.Error("expected valid quote")
	}

	invalid := Quote{Symbol: "", Price: 0}
	if invalid.IsValid() {
		t.Error("expected invalid quote")
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
	}{
		{"buy", ActionBuy},
		{"BUY", ActionBuy},
		{"strong_buy", ActionStrongBuy},
		{"Sell", ActionSell},
		{"STRONG_SELL", ActionStrongSell},
		{"hold", ActionNeutral},
		{"WAIT", ActionNeutral},
		{"", ActionNeutral},
	}
	for _, tt := range tests {
		if got := ParseAction(tt.in); got != tt.want {
			t.Errorf("ParseAction(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAction_Direction(t *testing.T) {
	if ActionStrongBuy.Direction() != 1 || ActionBuy.Direction() != 1 {
		t.Error("buy actions should have direction +1")
	}
	if ActionStrongSell.Direction() != -1 || ActionSell.Direction() != -1 {
		t.Error("sell actions should have direction -1")
	}
	if ActionNeutral.Direction() != 0 {
		t.Error("neutral should have direction 0")
	}
}

func TestOrderBook_Helpers(t *testing.T) {
	ob := OrderBook{
		Symbol: "ETHUSDT",
		Bids:   []Level{{Price: 100, Size: 2}, {Price: 99, Size: 3}, {Price: 98, Size: 5}},
		Asks:   []Level{{Price: 101, Size: 1}, {Price: 102, Size: 4}},
	}

	if ob.BestBid() != 100 || ob.BestAsk() != 101 {
		t.Errorf("unexpected best prices: %f / %f", ob.BestBid(), ob.BestAsk())
	}
	if ob.Spread() != 1 {
		t.Errorf("expected spread 1, got %f", ob.Spread())
	}
	if ob.MidPrice() != 100.5 {
		t.Errorf("expected mid 100.5, got %f", ob.MidPrice())
	}
	if ob.TotalBidVolume(2) != 5 {
		t.Errorf("expected bid volume 5 over 2 levels, got %f", ob.TotalBidVolume(2))
	}
	if ob.TotalBidVolume(0) != 10 {
		t.Errorf("expected full bid volume 10, got %f", ob.TotalBidVolume(0))
	}
	if ob.TotalAskVolume(10) != 5 {
		t.Errorf("expected ask volume 5, got %f", ob.TotalAskVolume(10))
	}

	empty := OrderBook{}
	if empty.Spread() != 0 || empty.MidPrice() != 0 {
		t.Error("empty book should report zero spread and mid")
	}
}

func TestCloses(t *testing.T) {
	bars := []OHLCV{{Close: 1}, {Close: 2}, {Close: 3}}
	got := Closes(bars)
	if len(got) != 3 || got[2] != 3 {
		t.Errorf("unexpected closes: %v", got)
	}
}
