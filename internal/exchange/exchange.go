// Package exchange defines the venue abstraction used for market data and execution.
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/shopspring/decimal"
)

// Exchange-specific errors.
var (
	ErrInvalidSymbol   = errors.New("exchange: invalid symbol")
	ErrInvalidSide     = errors.New("exchange: invalid side")
	ErrInvalidQuantity = errors.New("exchange: invalid quantity")
	ErrInvalidInterval = errors.New("exchange: invalid interval")
	ErrNoPrice         = errors.New("exchange: no price available")
	ErrEmptyResponse   = errors.New("exchange: empty response")
)

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderRequest is a market order.
type OrderRequest struct {
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
}

// Validate checks if the order request has valid required fields.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return ErrInvalidSymbol
	}
	if !r.Side.Valid() {
		return ErrInvalidSide
	}
	if !r.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	return nil
}

// OrderResult describes an accepted order.
type OrderResult struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     float64         `json:"price"` // fill price when known, 0 otherwise
	Simulated bool            `json:"simulated"`
	Time      time.Time       `json:"time"`
}

// Balance is the wallet balance of one coin.
type Balance struct {
	Coin      string          `json:"coin"`
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
}

// MarketData provides read-only market access.
type MarketData interface {
	GetTicker(ctx context.Context, symbol string) (*core.Quote, error)
	// GetKlines returns bars oldest first.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]core.OHLCV, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*core.OrderBook, error)
}

// Exchange is a venue that also executes orders.
type Exchange interface {
	MarketData
	Name() string
	GetBalance(ctx context.Context, coin string) (*Balance, error)
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}
