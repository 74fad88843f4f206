// Package realtime carries live bot events over WebSocket: a broadcasting
// server hub and a reconnecting client with a typed handler table.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/feed"
	"github.com/newthinker/tradebot/internal/matrix"
	"github.com/newthinker/tradebot/internal/trade"
)

// EventType names a message on the wire.
type EventType string

// Server to client events.
const (
	TypeSignalMatrixUpdate EventType = "signal_matrix_update"
	TypeTradeUpdate        EventType = "trade_update"
	TypePositionClosed     EventType = "position_closed"
	TypeTradeOpened        EventType = "trade_opened"
	TypePortfolioUpdate    EventType = "portfolio_update"
	TypePriceUpdate        EventType = "price_update"
	TypeBotStatus          EventType = "bot_status"
	TypeNewsUpdate         EventType = "news_update"
	TypeSocialSignal       EventType = "social_signal"
	TypePong               EventType = "pong"
)

// Client to server events.
const (
	TypeRequestSignalsMatrix   EventType = "request_signals_matrix"
	TypeRequestActiveTrades    EventType = "request_active_trades"
	TypeRequestPortfolioStatus EventType = "request_portfolio_status"
	TypePing                   EventType = "ping"
)

// Event is one member of the closed set of protocol messages.
type Event interface {
	EventType() EventType
}

// Envelope is the wire frame.
type Envelope struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type SignalMatrixUpdate struct {
	Rows      []matrix.Row `json:"rows"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TradeUpdate carries one changed trade or the full active snapshot.
type TradeUpdate struct {
	Trades []trade.Trade `json:"trades"`
}

type PositionClosed struct {
	Trade trade.Trade `json:"trade"`
}

type TradeOpened struct {
	Trade trade.Trade `json:"trade"`
}

type PortfolioUpdate struct {
	trade.Portfolio
}

// PriceTick is the latest price of one symbol.
type PriceTick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
}

type PriceUpdate struct {
	Prices []PriceTick `json:"prices"`
}

// BotStatus reports the analysis loop state.
type BotStatus struct {
	Status        string     `json:"status"` // running or stopped
	Running       bool       `json:"running"`
	StatusMessage string     `json:"status_message"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	Pairs         []string   `json:"pairs"`
	LastCycle     *time.Time `json:"last_cycle,omitempty"`
	Cycles        int64      `json:"cycles"`
	Strategies    []string   `json:"strategies"`
	AutoTrade     bool       `json:"auto_trade"`
	Virtual       bool       `json:"virtual"`
}

type NewsUpdate struct {
	feed.NewsItem
}

type SocialSignal struct {
	feed.SocialSignal
}

type Pong struct{}

type RequestSignalsMatrix struct{}

type RequestActiveTrades struct{}

type RequestPortfolioStatus struct{}

type Ping struct{}

func (SignalMatrixUpdate) EventType() EventType     { return TypeSignalMatrixUpdate }
func (TradeUpdate) EventType() EventType            { return TypeTradeUpdate }
func (PositionClosed) EventType() EventType         { return TypePositionClosed }
func (TradeOpened) EventType() EventType            { return TypeTradeOpened }
func (PortfolioUpdate) EventType() EventType        { return TypePortfolioUpdate }
func (PriceUpdate) EventType() EventType            { return TypePriceUpdate }
func (BotStatus) EventType() EventType              { return TypeBotStatus }
func (NewsUpdate) EventType() EventType             { return TypeNewsUpdate }
func (SocialSignal) EventType() EventType           { return TypeSocialSignal }
func (Pong) EventType() EventType                   { return TypePong }
func (RequestSignalsMatrix) EventType() EventType   { return TypeRequestSignalsMatrix }
func (RequestActiveTrades) EventType() EventType    { return TypeRequestActiveTrades }
func (RequestPortfolioStatus) EventType() EventType { return TypeRequestPortfolioStatus }
func (Ping) EventType() EventType                   { return TypePing }

type decodeFunc func(json.RawMessage) (Event, error)

func decoder[E Event]() decodeFunc {
	return func(raw json.RawMessage) (Event, error) {
		var e E
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, err
			}
		}
		return e, nil
	}
}

var decoders = map[EventType]decodeFunc{
	TypeSignalMatrixUpdate:     decoder[SignalMatrixUpdate](),
	TypeTradeUpdate:            decoder[TradeUpdate](),
	TypePositionClosed:         decoder[PositionClosed](),
	TypeTradeOpened:            decoder[TradeOpened](),
	TypePortfolioUpdate:        decoder[PortfolioUpdate](),
	TypePriceUpdate:            decoder[PriceUpdate](),
	TypeBotStatus:              decoder[BotStatus](),
	TypeNewsUpdate:             decoder[NewsUpdate](),
	TypeSocialSignal:           decoder[SocialSignal](),
	TypePong:                   decoder[Pong](),
	TypeRequestSignalsMatrix:   decoder[RequestSignalsMatrix](),
	TypeRequestActiveTrades:    decoder[RequestActiveTrades](),
	TypeRequestPortfolioStatus: decoder[RequestPortfolioStatus](),
	TypePing:                   decoder[Ping](),
}

// Known reports whether t is part of the protocol.
func Known(t EventType) bool {
	_, ok := decoders[t]
	return ok
}

// Encode frames an event.
func Encode(e Event, now time.Time) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	return json.Marshal(Envelope{Type: e.EventType(), Data: data, Timestamp: now.UTC()})
}

// Decode parses a frame. Unknown event types fail with core.ErrUnknownEvent.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, core.WrapError(core.ErrInvalidRequest, err)
	}
	dec, ok := decoders[env.Type]
	if !ok {
		return nil, core.Errorf(core.ErrUnknownEvent, "event %q", env.Type)
	}
	e, err := dec(env.Data)
	if err != nil {
		return nil, core.Errorf(core.ErrInvalidRequest, "decode %s: %w", env.Type, err)
	}
	return e, nil
}
