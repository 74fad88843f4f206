// Package paper simulates order execution on top of live market data.
package paper

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/exchange"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var quoteAssets = []string{"USDT", "USDC", "BTC", "ETH"}

// Exchange fills market orders at the last traded price of the wrapped market
// data source. It never sends orders anywhere.
type Exchange struct {
	market     exchange.MarketData
	commission decimal.Decimal
	logger     *zap.Logger

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	fills    []exchange.OrderResult
}

// New creates a paper exchange funded with initial units of quoteCoin.
func New(market exchange.MarketData, quoteCoin string, initial, commissionRate float64, logger *zap.Logger) *Exchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exchange{
		market:     market,
		commission: decimal.NewFromFloat(commissionRate),
		logger:     logger.Named("paper"),
		balances: map[string]decimal.Decimal{
			strings.ToUpper(quoteCoin): decimal.NewFromFloat(initial),
		},
	}
}

func (e *Exchange) Name() string { return "paper" }

func (e *Exchange) GetTicker(ctx context.Context, symbol string) (*core.Quote, error) {
	return e.market.GetTicker(ctx, symbol)
}

func (e *Exchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]core.OHLCV, error) {
	return e.market.GetKlines(ctx, symbol, interval, limit)
}

func (e *Exchange) GetOrderBook(ctx context.Context, symbol string, depth int) (*core.OrderBook, error) {
	return e.market.GetOrderBook(ctx, symbol, depth)
}

// GetBalance returns the simulated balance of coin.
func (e *Exchange) GetBalance(_ context.Context, coin string) (*exchange.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.balances[strings.ToUpper(coin)]
	return &exchange.Balance{Coin: strings.ToUpper(coin), Total: b, Available: b}, nil
}

// PlaceMarketOrder fills req immediately. Buys require enough quote balance;
// sells may take the base balance negative.
func (e *Exchange) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	base, quote := SplitSymbol(req.Symbol)

	q, err := e.market.GetTicker(ctx, req.Symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "price for paper fill %s", req.Symbol)
	}
	if q.Price <= 0 {
		return nil, errors.Wrap(exchange.ErrNoPrice, req.Symbol)
	}

	price := decimal.NewFromFloat(q.Price)
	notional := price.Mul(req.Quantity)
	fee := notional.Mul(e.commission)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch req.Side {
	case exchange.SideBuy:
		cost := notional.Add(fee)
		if e.balances[quote].LessThan(cost) {
			return nil, errors.Wrapf(core.ErrInsufficientFunds, "need %s %s, have %s",
				cost.StringFixed(2), quote, e.balances[quote].StringFixed(2))
		}
		e.balances[quote] = e.balances[quote].Sub(cost)
		e.balances[base] = e.balances[base].Add(req.Quantity)
	case exchange.SideSell:
		e.balances[base] = e.balances[base].Sub(req.Quantity)
		e.balances[quote] = e.balances[quote].Add(notional.Sub(fee))
	}

	res := exchange.OrderResult{
		OrderID:   uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     q.Price,
		Simulated: true,
		Time:      time.Now(),
	}
	e.fills = append(e.fills, res)

	e.logger.Debug("paper fill",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("qty", req.Quantity.String()),
		zap.Float64("price", q.Price))

	return &res, nil
}

// Fills returns a copy of every simulated fill.
func (e *Exchange) Fills() []exchange.OrderResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]exchange.OrderResult, len(e.fills))
	copy(out, e.fills)
	return out
}

// SplitSymbol splits "BTCUSDT" into ("BTC", "USDT"). Unknown quotes default to USDT.
func SplitSymbol(symbol string) (base, quote string) {
	s := strings.ToUpper(symbol)
	for _, q := range quoteAssets {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q
		}
	}
	return s, "USDT"
}

var _ exchange.Exchange = (*Exchange)(nil)
