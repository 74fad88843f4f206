package backtest

import (
	"time"

	"github.com/newthinker/tradebot/internal/core"
)

// ExitReason says why a simulated trade ended.
type ExitReason string

const (
	ExitSignal     ExitReason = "signal"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitEndOfData  ExitReason = "end_of_data"
)

// Request selects the data a backtest replays.
type Request struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Limit    int    `json:"limit"`
}

// Result holds the complete backtest output
type Result struct {
	Strategy  string        `json:"strategy"`
	Symbol    string        `json:"symbol"`
	Interval  string        `json:"interval"`
	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	Bars      int           `json:"bars"`
	Signals   []core.Signal `json:"signals"`
	Trades    []Trade       `json:"trades"`
	Stats     Stats         `json:"stats"`
}

// Trade represents a simulated long position from entry to exit
type Trade struct {
	EntrySignal core.Signal `json:"entry_signal"`
	EntryPrice  float64     `json:"entry_price"`
	EntryTime   time.Time   `json:"entry_time"`
	StopLoss    float64     `json:"stop_loss,omitempty"`
	TakeProfit  float64     `json:"take_profit,omitempty"`
	ExitPrice   float64     `json:"exit_price"`
	ExitTime    time.Time   `json:"exit_time"`
	ExitReason  ExitReason  `json:"exit_reason"`
	Return      float64     `json:"return"` // fraction, net of commission
}

// Stats holds performance statistics
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`     // percent of closed trades
	TotalReturn   float64 `json:"total_return"` // compounded, percent
	MaxDrawdown   float64 `json:"max_drawdown"` // percent
	SharpeRatio   float64 `json:"sharpe_ratio"` // per trade
	AvgReturn     float64 `json:"avg_return"`   // percent
	BestTrade     float64 `json:"best_trade"`   // percent
	WorstTrade    float64 `json:"worst_trade"`  // percent
	ProfitFactor  float64 `json:"profit_factor"`
	OpenAtEnd     int     `json:"open_at_end"`
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.Return > 0
}

// IsClosed reports whether the trade exited before the data ran out.
func (t Trade) IsClosed() bool {
	return t.ExitReason != "" && t.ExitReason != ExitEndOfData
}
