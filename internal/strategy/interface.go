package strategy

import (
	"time"

	"github.com/newthinker/tradebot/internal/core"
)

// Config holds strategy configuration
type Config struct {
	Enabled bool
	Params  map[string]any
}

// DataRequirements specifies what data a strategy needs
type DataRequirements struct {
	Candles     int  // Bars of history needed
	OrderBook   bool // Needs a depth snapshot
	BookHistory bool // Needs previous depth snapshots
	WhaleFlows  bool // Needs whale transactions
	Indicators  []string
}

// BookSnapshot is an order book captured at a point in time.
type BookSnapshot struct {
	Book core.OrderBook
	At   time.Time
}

// AnalysisContext provides data to strategies
type AnalysisContext struct {
	Symbol            string
	OHLCV             []core.OHLCV
	Quote             *core.Quote
	OrderBook         *core.OrderBook
	PrevOrderBooks    []BookSnapshot // oldest first, excluding OrderBook
	WhaleTransactions []core.WhaleTransaction
	Now               time.Time
}

// Strategy defines the interface for trading strategies
type Strategy interface {
	Name() string
	Description() string
	RequiredData() DataRequirements
	Init(cfg Config) error
	Analyze(ctx AnalysisContext) ([]core.Signal, error)
}
