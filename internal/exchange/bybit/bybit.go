// Package bybit adapts the Bybit V5 REST API to exchange.Exchange.
package bybit

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	bybitapi "github.com/hirokisan/bybit/v2"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/exchange"
	"github.com/newthinker/tradebot/internal/retry"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxKlinesPerRequest is the page size limit of /v5/market/kline.
const maxKlinesPerRequest = 1000

// Config holds Bybit connection settings.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Category  string
}

// Client implements exchange.Exchange on Bybit spot.
type Client struct {
	api      *bybitapi.Client
	category bybitapi.CategoryV5
	retrier  *retry.Policy
	logger   *zap.Logger
}

// New creates a Bybit client. Without credentials only market data calls succeed.
func New(cfg Config, retrier *retry.Policy, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retrier == nil {
		retrier = retry.New()
	}

	api := bybitapi.NewClient()
	if cfg.Testnet {
		api = api.WithBaseURL(bybitapi.TestNetBaseURL)
	}
	if cfg.APIKey != "" {
		api = api.WithAuth(cfg.APIKey, cfg.APISecret)
	}

	category := bybitapi.CategoryV5Spot
	if cfg.Category != "" {
		category = bybitapi.CategoryV5(cfg.Category)
	}

	return &Client{
		api:      api,
		category: category,
		retrier:  retrier,
		logger:   logger.Named("bybit"),
	}
}

func (c *Client) Name() string { return "bybit" }

// GetTicker returns the 24h ticker of symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*core.Quote, error) {
	sym := bybitapi.SymbolV5(symbol)
	res, err := retry.DoWithData(c.retrier, ctx, func(ctx context.Context) (*bybitapi.V5GetTickersResponse, error) {
		return c.api.V5().Market().GetTickers(bybitapi.V5GetTickersParam{
			Category: c.category,
			Symbol:   &sym,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get ticker %s", symbol)
	}
	if res == nil || res.Result.Spot == nil || len(res.Result.Spot.List) == 0 {
		return nil, errors.Wrapf(exchange.ErrEmptyResponse, "ticker %s", symbol)
	}

	item := res.Result.Spot.List[0]
	price, err := parseFloat(item.LastPrice)
	if err != nil {
		return nil, errors.Wrapf(err, "parse last price for %s", symbol)
	}

	// Bybit reports the 24h change as a fraction ("0.0123")
	change, _ := parseFloat(item.Price24HPcnt)
	bid, _ := parseFloat(item.Bid1Price)
	ask, _ := parseFloat(item.Ask1Price)
	high, _ := parseFloat(item.HighPrice24H)
	low, _ := parseFloat(item.LowPrice24H)
	vol, _ := parseFloat(item.Volume24H)
	turnover, _ := parseFloat(item.Turnover24H)

	return &core.Quote{
		Symbol:           symbol,
		Price:            price,
		Bid:              bid,
		Ask:              ask,
		High24h:          high,
		Low24h:           low,
		Volume24h:        vol,
		Turnover24h:      turnover,
		ChangePercent24h: change * 100,
		Time:             time.Now(),
		Source:           c.Name(),
	}, nil
}

// GetKlines fetches up to limit bars, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]core.OHLCV, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	bi, err := ConvertInterval(interval)
	if err != nil {
		return nil, err
	}
	batch := min(limit, maxKlinesPerRequest)

	res, err := retry.DoWithData(c.retrier, ctx, func(ctx context.Context) (*bybitapi.V5GetKlineResponse, error) {
		return c.api.V5().Market().GetKline(bybitapi.V5GetKlineParam{
			Category: c.category,
			Symbol:   bybitapi.SymbolV5(symbol),
			Interval: bybitapi.Interval(bi),
			Limit:    &batch,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get klines %s %s", symbol, interval)
	}
	if res == nil || len(res.Result.List) == 0 {
		return nil, errors.Wrapf(exchange.ErrEmptyResponse, "klines %s", symbol)
	}

	return parseKlines(symbol, interval, res.Result.List)
}

// parseKlines converts Bybit kline items (newest first) to bars oldest first.
func parseKlines(symbol, interval string, items []bybitapi.V5GetKlineItem) ([]core.OHLCV, error) {
	bars := make([]core.OHLCV, 0, len(items))
	for i, k := range items {
		ms, err := strconv.ParseInt(k.StartTime, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse start time at index %d", i)
		}
		vals := make([]float64, 5)
		for j, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
			if vals[j], err = parseFloat(s); err != nil {
				return nil, errors.Wrapf(err, "parse kline field %d at index %d", j, i)
			}
		}
		bars = append(bars, core.OHLCV{
			Symbol:   symbol,
			Interval: interval,
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
			Time:     time.UnixMilli(ms).UTC(),
		})
	}
	slices.SortFunc(bars, func(a, b core.OHLCV) int { return a.Time.Compare(b.Time) })
	return bars, nil
}

// GetOrderBook returns a depth snapshot.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (*core.OrderBook, error) {
	if depth <= 0 {
		depth = 50
	}
	res, err := retry.DoWithData(c.retrier, ctx, func(ctx context.Context) (*bybitapi.V5GetOrderbookResponse, error) {
		return c.api.V5().Market().GetOrderbook(bybitapi.V5GetOrderbookParam{
			Category: c.category,
			Symbol:   bybitapi.SymbolV5(symbol),
			Limit:    &depth,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get orderbook %s", symbol)
	}
	if res == nil {
		return nil, errors.Wrapf(exchange.ErrEmptyResponse, "orderbook %s", symbol)
	}

	ob := &core.OrderBook{Symbol: symbol, Time: time.UnixMilli(res.Result.Timestamp).UTC()}
	for _, b := range res.Result.Bids {
		ob.Bids = append(ob.Bids, parseLevel(b.Price, b.Quantity))
	}
	for _, a := range res.Result.Asks {
		ob.Asks = append(ob.Asks, parseLevel(a.Price, a.Quantity))
	}
	return ob, nil
}

func parseLevel(price, qty string) core.Level {
	p, _ := parseFloat(price)
	q, _ := parseFloat(qty)
	return core.Level{Price: p, Size: q}
}

// GetBalance returns the unified account balance of coin.
func (c *Client) GetBalance(ctx context.Context, coin string) (*exchange.Balance, error) {
	res, err := retry.DoWithData(c.retrier, ctx, func(ctx context.Context) (*bybitapi.V5GetWalletBalanceResponse, error) {
		return c.api.V5().Account().GetWalletBalance(bybitapi.AccountTypeV5("UNIFIED"), nil)
	})
	if err != nil {
		return nil, errors.Wrap(err, "get wallet balance")
	}

	bal := &exchange.Balance{Coin: coin}
	if res == nil || len(res.Result.List) == 0 {
		return bal, nil
	}
	for _, cb := range res.Result.List[0].Coin {
		if !strings.EqualFold(string(cb.Coin), coin) {
			continue
		}
		total, err := decimal.NewFromString(cb.WalletBalance)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s balance", coin)
		}
		bal.Total = total
		bal.Available = total
	}
	return bal, nil
}

// PlaceMarketOrder submits a spot market order. Rejected orders are not retried.
func (c *Client) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	side := bybitapi.SideBuy
	if req.Side == exchange.SideSell {
		side = bybitapi.SideSell
	}
	qty := req.Quantity.RoundFloor(4)
	param := bybitapi.V5CreateOrderParam{
		Category:  c.category,
		Symbol:    bybitapi.SymbolV5(req.Symbol),
		Side:      side,
		OrderType: bybitapi.OrderTypeMarket,
		Qty:       qty.String(),
	}

	// a single attempt: resubmitting a market order could double the position
	res, err := c.api.V5().Order().CreateOrder(param)
	if err != nil {
		c.logger.Error("order rejected",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.String("qty", qty.String()),
			zap.Error(err))
		return nil, errors.Wrapf(err, "create %s order", strings.ToLower(string(req.Side)))
	}

	c.logger.Info("order placed",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("order_id", res.Result.OrderID))

	return &exchange.OrderResult{
		OrderID:  res.Result.OrderID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: qty,
		Time:     time.Now(),
	}, nil
}

// ConvertInterval maps "1m", "4h", "1d", "1w" to Bybit's "1", "240", "D", "W".
func ConvertInterval(interval string) (string, error) {
	if len(interval) < 2 {
		return "", errors.Wrapf(exchange.ErrInvalidInterval, "%q", interval)
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return "", errors.Wrapf(exchange.ErrInvalidInterval, "%q", interval)
	}

	switch unit {
	case 'm':
		return strconv.Itoa(n), nil
	case 'h':
		return strconv.Itoa(n * 60), nil
	case 'd', 'D':
		return "D", nil
	case 'w', 'W':
		return "W", nil
	default:
		return "", errors.Wrapf(exchange.ErrInvalidInterval, "unsupported unit in %q", interval)
	}
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

var _ exchange.Exchange = (*Client)(nil)
