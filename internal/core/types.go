package core

import (
	"strings"
	"time"
)

// Quote represents a 24h ticker snapshot for a trading pair
type Quote struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	Bid              float64   `json:"bid"`
	Ask              float64   `json:"ask"`
	High24h          float64   `json:"high_24h"`
	Low24h           float64   `json:"low_24h"`
	Volume24h        float64   `json:"volume_24h"`
	Turnover24h      float64   `json:"turnover_24h"`
	ChangePercent24h float64   `json:"change_percent_24h"`
	Time             time.Time `json:"time"`
	Source           string    `json:"source"`
}

// IsValid checks if the quote has required fields
func (q Quote) IsValid() bool {
	return q.Symbol != "" && q.Price > 0
}

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"` // "1m", "15m", "1h", "1d"
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Time     time.Time `json:"time"`
}

// Closes extracts closing prices from bars.
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Level is a single price level of an order book side.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a depth snapshot. Bids are sorted descending, asks ascending.
type OrderBook struct {
	Symbol string    `json:"symbol"`
	Bids   []Level   `json:"bids"`
	Asks   []Level   `json:"asks"`
	Time   time.Time `json:"time"`
}

// BestBid returns the highest bid price or 0.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the lowest ask price or 0.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Spread returns ask minus bid, 0 when either side is empty.
func (ob OrderBook) Spread() float64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}
	return ob.BestAsk() - ob.BestBid()
}

// MidPrice returns the midpoint between best bid and ask.
func (ob OrderBook) MidPrice() float64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}
	return (ob.BestAsk() + ob.BestBid()) / 2
}

// TotalBidVolume sums bid sizes over the first depth levels (all when depth <= 0).
func (ob OrderBook) TotalBidVolume(depth int) float64 {
	return sumSizes(ob.Bids, depth)
}

// TotalAskVolume sums ask sizes over the first depth levels (all when depth <= 0).
func (ob OrderBook) TotalAskVolume(depth int) float64 {
	return sumSizes(ob.Asks, depth)
}

func sumSizes(levels []Level, depth int) float64 {
	if depth <= 0 || depth > len(levels) {
		depth = len(levels)
	}
	var total float64
	for _, l := range levels[:depth] {
		total += l.Size
	}
	return total
}

// Action represents a trading signal action
type Action string

const (
	ActionStrongBuy  Action = "STRONG_BUY"
	ActionBuy        Action = "BUY"
	ActionNeutral    Action = "NEUTRAL"
	ActionSell       Action = "SELL"
	ActionStrongSell Action = "STRONG_SELL"
)

// ParseAction normalizes free-form action strings ("buy", "Strong_Sell", "hold").
func ParseAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STRONG_BUY":
		return ActionStrongBuy
	case "BUY", "LONG":
		return ActionBuy
	case "SELL", "SHORT":
		return ActionSell
	case "STRONG_SELL":
		return ActionStrongSell
	default:
		return ActionNeutral
	}
}

// IsBuy reports whether the action opens or adds to a long.
func (a Action) IsBuy() bool {
	return a == ActionBuy || a == ActionStrongBuy
}

// IsSell reports whether the action is bearish.
func (a Action) IsSell() bool {
	return a == ActionSell || a == ActionStrongSell
}

// Direction returns +1 for buy actions, -1 for sell actions and 0 otherwise.
func (a Action) Direction() int {
	switch {
	case a.IsBuy():
		return 1
	case a.IsSell():
		return -1
	default:
		return 0
	}
}

// Signal represents a trading signal from a strategy or the aggregator
type Signal struct {
	ID          string         `json:"id"`
	Symbol      string         `json:"symbol"`
	Action      Action         `json:"action"`
	Confidence  float64        `json:"confidence"`
	Price       float64        `json:"price"` // Price at signal generation
	StopLoss    float64        `json:"stop_loss,omitempty"`
	TakeProfit  float64        `json:"take_profit,omitempty"`
	Reason      string         `json:"reason"`
	Strategy    string         `json:"strategy"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// WhaleTxType classifies a large on-chain transfer.
type WhaleTxType string

const (
	WhaleExchangeDeposit    WhaleTxType = "exchange_deposit"
	WhaleExchangeWithdrawal WhaleTxType = "exchange_withdrawal"
	WhaleTransfer           WhaleTxType = "transfer"
)

// WhaleTransaction is a large transfer reported by an on-chain data source.
type WhaleTransaction struct {
	ID       string      `json:"id"`
	Symbol   string      `json:"symbol"`
	Type     WhaleTxType `json:"type"`
	Amount   float64     `json:"amount"`
	USDValue float64     `json:"usd_value"`
	From     string      `json:"from_address"`
	To       string      `json:"to_address"`
	Time     time.Time   `json:"timestamp"`
}
