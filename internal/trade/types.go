// Package trade opens, tracks and closes real and paper trades.
package trade

import (
	"errors"
	"time"

	"github.com/newthinker/tradebot/internal/exchange"
)

// Trade-specific errors.
var (
	ErrInvalidSymbol   = errors.New("trade: invalid symbol")
	ErrInvalidSide     = errors.New("trade: side must be BUY or SELL")
	ErrInvalidPrice    = errors.New("trade: price must be positive")
	ErrInvalidQuantity = errors.New("trade: quantity must be positive")
	ErrInvalidStopLoss = errors.New("trade: stop loss on the wrong side of entry")
	ErrInvalidTarget   = errors.New("trade: take profit on the wrong side of entry")
	ErrSymbolOpen      = errors.New("trade: symbol already has an open trade")
	ErrMaxPositions    = errors.New("trade: max open positions reached")
	ErrNoExchange      = errors.New("trade: no exchange configured for real trades")
)

// Status is the lifecycle state of a trade.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// CloseReason records why a trade was closed.
type CloseReason string

const (
	ReasonManual     CloseReason = "manual"
	ReasonStopLoss   CloseReason = "stop_loss"
	ReasonTakeProfit CloseReason = "take_profit"
	ReasonCloseAll   CloseReason = "close_all"
	ReasonSignal     CloseReason = "signal"
)

// Trade is one position from entry to exit.
type Trade struct {
	ID           string        `json:"id"`
	Symbol       string        `json:"symbol"`
	Side         exchange.Side `json:"side"`
	EntryPrice   float64       `json:"entry_price"`
	CurrentPrice float64       `json:"current_price"`
	Quantity     float64       `json:"quantity"`
	StopLoss     float64       `json:"stop_loss"`
	TakeProfit   float64       `json:"take_profit"`
	Status       Status        `json:"status"`
	Virtual      bool          `json:"is_virtual"`
	Strategy     string        `json:"strategy,omitempty"`
	SignalID     string        `json:"signal_id,omitempty"`
	OrderID      string        `json:"order_id,omitempty"`
	PnL          float64       `json:"pnl"`
	PnLPercent   float64       `json:"pnl_percent"`
	Commission   float64       `json:"commission"`
	ExitPrice    float64       `json:"exit_price,omitempty"`
	CloseReason  CloseReason   `json:"close_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
}

// IsOpen reports whether the trade is still active.
func (t Trade) IsOpen() bool { return t.Status == StatusOpen }

// Value is the entry notional.
func (t Trade) Value() float64 { return t.EntryPrice * t.Quantity }

// HoldingTime is the time between entry and exit (or now for open trades).
func (t Trade) HoldingTime(now time.Time) time.Duration {
	if t.ClosedAt != nil {
		return t.ClosedAt.Sub(t.CreatedAt)
	}
	return now.Sub(t.CreatedAt)
}

// OpenRequest describes a new trade. Zero Quantity is sized from risk settings;
// zero StopLoss/TakeProfit use the configured percentages.
type OpenRequest struct {
	Symbol     string        `json:"symbol"`
	Side       exchange.Side `json:"side"`
	Price      float64       `json:"price"`
	Quantity   float64       `json:"quantity"`
	StopLoss   float64       `json:"stop_loss"`
	TakeProfit float64       `json:"take_profit"`
	Strategy   string        `json:"strategy,omitempty"`
	SignalID   string        `json:"signal_id,omitempty"`
	Virtual    bool          `json:"is_virtual"`
}

// ModifyRequest changes protective levels or size of an open trade. Nil fields are kept.
type ModifyRequest struct {
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	Quantity   *float64 `json:"quantity,omitempty"`
}

// Portfolio summarizes the paper account.
type Portfolio struct {
	Initial       float64 `json:"initial_capital"`
	Total         float64 `json:"total"`
	Available     float64 `json:"available"`
	InPositions   float64 `json:"in_positions"`
	Unrealized    float64 `json:"unrealized_pnl"`
	Realized      float64 `json:"realized_pnl"`
	OpenPositions int     `json:"open_positions"`
}

// Stats aggregates closed trades.
type Stats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	BestTrade   float64 `json:"best_trade"`
	WorstTrade  float64 `json:"worst_trade"`
	TotalPnL    float64 `json:"total_pnl"`
	Commission  float64 `json:"total_commission"`
}

// EventType names a trade lifecycle event.
type EventType string

const (
	EventOpened  EventType = "trade_opened"
	EventUpdated EventType = "trade_update"
	EventClosed  EventType = "position_closed"
)

// Listener receives trade lifecycle events.
type Listener func(EventType, Trade)
