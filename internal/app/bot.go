// Package app runs the analysis loop that ties market data, strategies,
// the aggregator, the router and the trade manager together.
package app

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/newthinker/tradebot/internal/aggregator"
	"github.com/newthinker/tradebot/internal/alert"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/exchange"
	"github.com/newthinker/tradebot/internal/feed"
	"github.com/newthinker/tradebot/internal/matrix"
	"github.com/newthinker/tradebot/internal/metrics"
	"github.com/newthinker/tradebot/internal/realtime"
	"github.com/newthinker/tradebot/internal/risk"
	"github.com/newthinker/tradebot/internal/router"
	"github.com/newthinker/tradebot/internal/settings"
	"github.com/newthinker/tradebot/internal/strategy"
	"github.com/newthinker/tradebot/internal/trade"
	"go.uber.org/zap"
)

// BookHistory is how long order book snapshots are kept per pair.
const BookHistory = 300 * time.Second

// whaleLookback bounds the whale transactions handed to strategies.
const whaleLookback = 24 * time.Hour

// Options tunes the analysis loop.
type Options struct {
	KlineInterval      string
	KlineLimit         int
	OrderBookDepth     int
	BroadcastInterval  time.Duration
	PriceFlushInterval time.Duration
	AnomalyMultiplier  float64
	CheckpointInterval time.Duration // 0 disables trade checkpoints
}

func (o *Options) defaults() {
	if o.KlineInterval == "" {
		o.KlineInterval = "1h"
	}
	if o.KlineLimit <= 0 {
		o.KlineLimit = 200
	}
	if o.OrderBookDepth <= 0 {
		o.OrderBookDepth = 50
	}
	if o.BroadcastInterval <= 0 {
		o.BroadcastInterval = 5 * time.Second
	}
	if o.PriceFlushInterval <= 0 {
		o.PriceFlushInterval = 200 * time.Millisecond
	}
	if o.AnomalyMultiplier <= 0 {
		o.AnomalyMultiplier = 3
	}
}

// Deps are the collaborators of the bot. Whales, Metrics, Alerts and
// Broadcaster may be nil.
type Deps struct {
	Market      exchange.MarketData
	Engine      *strategy.Engine
	Aggregator  *aggregator.Aggregator
	Matrix      *matrix.Store
	Router      *router.Router
	Trades      *trade.Manager
	AutoTrader  *trade.AutoTrader
	Settings    *settings.Manager
	Whales      *feed.Whales
	Broadcaster realtime.Broadcaster
	Metrics     *metrics.Registry
	Alerts      *alert.Evaluator
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(realtime.Event) {}

// Bot is the trading bot orchestrator.
type Bot struct {
	opts   Options
	deps   Deps
	prices *realtime.PriceThrottler
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	pairs     []string
	interval  time.Duration
	books     map[string][]strategy.BookSnapshot
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	lastCycle time.Time
	lastCheck time.Time // last trade checkpoint
	cycles    int64
	message   string

	resetTicker chan time.Duration
}

// New creates a bot and subscribes it to settings and trade events.
func New(opts Options, deps Deps, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.defaults()
	if deps.Broadcaster == nil {
		deps.Broadcaster = nopBroadcaster{}
	}

	b := &Bot{
		opts:        opts,
		deps:        deps,
		prices:      realtime.NewPriceThrottler(deps.Broadcaster, opts.PriceFlushInterval),
		logger:      logger.Named("bot"),
		now:         time.Now,
		books:       make(map[string][]strategy.BookSnapshot),
		message:     "stopped",
		resetTicker: make(chan time.Duration, 1),
	}

	if deps.AutoTrader != nil {
		deps.Router.SetExecutor(router.ExecutorFunc(func(ctx context.Context, sig core.Signal) error {
			_, err := deps.AutoTrader.Execute(ctx, sig)
			return err
		}))
	}
	deps.Trades.Subscribe(b.onTrade)
	deps.Settings.AddGuard(b.guardCapital)
	deps.Settings.Subscribe(b.applySettings)
	b.applySettings(deps.Settings.Get())
	return b
}

// guardCapital re-seeds the paper account before a capital change commits,
// so settings and ledger never disagree. The trade manager refuses once
// trades exist, which rejects the settings change too.
func (b *Bot) guardCapital(prev, next settings.Settings) error {
	if next.Risk.InitialCapital == prev.Risk.InitialCapital {
		return nil
	}
	return b.deps.Trades.SetInitialCapital(next.Risk.InitialCapital)
}

func (b *Bot) applySettings(s settings.Settings) {
	b.mu.Lock()
	b.pairs = slices.Clone(s.Pairs)
	interval := s.AnalysisInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	changed := interval != b.interval
	b.interval = interval
	for sym := range b.books {
		if !slices.Contains(b.pairs, sym) {
			delete(b.books, sym)
		}
	}
	b.mu.Unlock()

	if changed {
		select {
		case b.resetTicker <- interval:
		default:
		}
	}

	if c := s.Risk.InitialCapital; c > 0 && c != b.deps.Trades.InitialCapital() {
		if err := b.deps.Trades.SetInitialCapital(c); err != nil {
			b.logger.Warn("initial capital not applied", zap.Float64("capital", c), zap.Error(err))
		}
	}
	b.deps.Trades.SetLimits(s.Risk.MaxPositions, s.Risk.RiskPerTrade, s.Risk.StopLossPct, s.Risk.TakeProfitPct)
	b.deps.Aggregator.SetWeights(s.StrategyWeights)
	b.deps.Router.SetAutoTrade(s.General.AutoTrade)
	if b.deps.AutoTrader != nil {
		b.deps.AutoTrader.SetVirtual(s.General.Virtual)
	}
	b.logger.Debug("settings applied",
		zap.Strings("pairs", s.Pairs),
		zap.Duration("interval", interval),
		zap.Bool("auto_trade", s.General.AutoTrade),
	)
}

func (b *Bot) onTrade(ev trade.EventType, t trade.Trade) {
	switch ev {
	case trade.EventOpened:
		b.deps.Broadcaster.Broadcast(realtime.TradeOpened{Trade: t})
		if b.deps.Metrics != nil {
			b.deps.Metrics.RecordTradeOpened(string(t.Side))
		}
	case trade.EventClosed:
		b.deps.Broadcaster.Broadcast(realtime.PositionClosed{Trade: t})
		if b.deps.Metrics != nil {
			b.deps.Metrics.RecordTradeClosed(string(t.CloseReason))
		}
	case trade.EventUpdated:
		b.deps.Broadcaster.Broadcast(realtime.TradeUpdate{Trades: []trade.Trade{t}})
	}
}

// Pairs returns the pairs analyzed each cycle.
func (b *Bot) Pairs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.pairs)
}

// Start launches the analysis loop, the snapshot broadcaster and the price
// throttler. The first cycle runs immediately.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return core.ErrBotAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.done = make(chan struct{})
	b.startedAt = b.now()
	b.message = "running"
	interval := b.interval
	done := b.done
	b.mu.Unlock()

	b.logger.Info("bot starting",
		zap.Strings("pairs", b.Pairs()),
		zap.Duration("interval", interval),
		zap.Strings("strategies", b.deps.Engine.Names()),
	)
	b.deps.Broadcaster.Broadcast(b.Status())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		b.loop(ctx, interval)
	}()
	go func() {
		defer wg.Done()
		b.broadcastLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.prices.Run(ctx)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()
	return nil
}

// Stop cancels the loops and waits for them to finish.
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return core.ErrBotNotRunning
	}
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	<-done

	b.mu.Lock()
	b.running = false
	b.cancel = nil
	b.message = "stopped"
	b.mu.Unlock()

	b.logger.Info("bot stopped")
	b.deps.Broadcaster.Broadcast(b.Status())
	return nil
}

// Running reports whether the loop is active.
func (b *Bot) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Uptime is the time since Start, or zero when stopped.
func (b *Bot) Uptime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return 0
	}
	return b.now().Sub(b.startedAt)
}

// Status reports the loop state.
func (b *Bot) Status() realtime.BotStatus {
	s := b.deps.Settings.Get()

	b.mu.RLock()
	defer b.mu.RUnlock()
	st := realtime.BotStatus{
		Status:        "stopped",
		Running:       b.running,
		StatusMessage: b.message,
		Pairs:         slices.Clone(b.pairs),
		Cycles:        b.cycles,
		Strategies:    b.deps.Engine.Names(),
		AutoTrade:     s.General.AutoTrade,
		Virtual:       s.General.Virtual,
	}
	if b.running {
		st.Status = "running"
		started := b.startedAt
		st.StartedAt = &started
		st.UptimeSeconds = b.now().Sub(b.startedAt).Seconds()
	}
	if !b.lastCycle.IsZero() {
		last := b.lastCycle
		st.LastCycle = &last
	}
	return st
}

func (b *Bot) loop(ctx context.Context, interval time.Duration) {
	b.RunCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-b.resetTicker:
			ticker.Reset(d)
			b.logger.Info("analysis interval changed", zap.Duration("interval", d))
		case <-ticker.C:
			b.RunCycle(ctx)
		}
	}
}

func (b *Bot) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(b.opts.BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.BroadcastSnapshots(ctx)
		}
	}
}

// BroadcastSnapshots pushes the portfolio and active trades to every client.
func (b *Bot) BroadcastSnapshots(ctx context.Context) {
	p := b.PortfolioStatus(ctx)
	b.deps.Broadcaster.Broadcast(p)
	b.deps.Broadcaster.Broadcast(b.ActiveTrades(ctx))
	if b.deps.Metrics != nil {
		b.deps.Metrics.SetPortfolio(p.OpenPositions, p.Total)
	}
}

// RunCycle analyzes every pair once, routes the aggregated signals and
// publishes the new matrix.
func (b *Bot) RunCycle(ctx context.Context) []matrix.Row {
	start := b.now()
	pairs := b.Pairs()
	if len(pairs) == 0 {
		b.logger.Debug("no trading pairs configured")
		return nil
	}

	rows := make([]matrix.Row, 0, len(pairs))
	var aggregated []core.Signal
	failed := 0
	for _, symbol := range pairs {
		if ctx.Err() != nil {
			return nil
		}
		row, sig, err := b.analyze(ctx, symbol, start)
		if err != nil {
			b.logger.Warn("pair analysis failed", zap.String("symbol", symbol), zap.Error(err))
			rows = append(rows, matrix.FailedRow(symbol, start))
			failed++
			continue
		}
		rows = append(rows, row)
		if sig != nil {
			aggregated = append(aggregated, *sig)
		}
	}

	routed := b.deps.Router.RouteBatch(ctx, aggregated)
	if b.deps.Metrics != nil {
		for _, sig := range routed {
			b.deps.Metrics.RecordRouted(string(sig.Action))
		}
	}

	if err := b.deps.Matrix.Put(ctx, rows, start); err != nil {
		b.logger.Warn("matrix store failed", zap.Error(err))
	}
	b.deps.Broadcaster.Broadcast(realtime.SignalMatrixUpdate{Rows: rows, UpdatedAt: start})

	elapsed := b.now().Sub(start)
	b.mu.Lock()
	b.lastCycle = start
	b.cycles++
	checkpoint := b.opts.CheckpointInterval > 0 && start.Sub(b.lastCheck) >= b.opts.CheckpointInterval
	if checkpoint {
		b.lastCheck = start
	}
	b.mu.Unlock()
	if checkpoint {
		b.deps.Trades.Checkpoint()
	}
	if b.deps.Metrics != nil {
		b.deps.Metrics.RecordAnalysisCycle(elapsed.Seconds())
	}

	if b.deps.Alerts != nil && b.deps.Alerts.Len() > 0 {
		b.deps.Alerts.SetMetrics(b.alertMetrics(failed, elapsed))
		b.deps.Alerts.EvaluateAll(ctx)
	}

	b.logger.Info("analysis cycle complete",
		zap.Int("pairs", len(pairs)),
		zap.Int("aggregated", len(aggregated)),
		zap.Int("routed", len(routed)),
		zap.Duration("duration", elapsed),
	)
	return rows
}

// alertMetrics snapshots the values alert rules are written against.
func (b *Bot) alertMetrics(failed int, elapsed time.Duration) map[string]float64 {
	p := b.deps.Trades.Portfolio()
	var drawdown float64
	if capital := p.Initial; capital > 0 && p.Total < capital {
		drawdown = (capital - p.Total) / capital * 100
	}
	return map[string]float64{
		alert.MetricOpenPositions: float64(p.OpenPositions),
		alert.MetricEquity:        p.Total,
		alert.MetricAvailable:     p.Available,
		alert.MetricUnrealizedPnL: p.Unrealized,
		alert.MetricRealizedPnL:   p.Realized,
		alert.MetricDrawdownPct:   drawdown,
		alert.MetricFailedPairs:   float64(failed),
		alert.MetricCycleSeconds:  elapsed.Seconds(),
	}
}

func (b *Bot) analyze(ctx context.Context, symbol string, now time.Time) (matrix.Row, *core.Signal, error) {
	quote, err := b.deps.Market.GetTicker(ctx, symbol)
	if err != nil {
		return matrix.Row{}, nil, fmt.Errorf("ticker: %w", err)
	}
	candles, err := b.deps.Market.GetKlines(ctx, symbol, b.opts.KlineInterval, b.opts.KlineLimit)
	if err != nil {
		return matrix.Row{}, nil, fmt.Errorf("klines: %w", err)
	}
	book, err := b.deps.Market.GetOrderBook(ctx, symbol, b.opts.OrderBookDepth)
	if err != nil {
		b.logger.Debug("order book unavailable", zap.String("symbol", symbol), zap.Error(err))
		book = nil
	}

	actx := strategy.AnalysisContext{
		Symbol:         symbol,
		OHLCV:          candles,
		Quote:          quote,
		OrderBook:      book,
		PrevOrderBooks: b.recordBook(symbol, book, now),
		Now:            now,
	}
	if b.deps.Whales != nil {
		actx.WhaleTransactions = b.deps.Whales.Recent(symbol, now.Add(-whaleLookback))
	}

	results, err := b.deps.Engine.AnalyzeEach(ctx, actx)
	if err != nil {
		return matrix.Row{}, nil, err
	}

	var signals []core.Signal
	for _, r := range results {
		for _, sig := range r.Signals {
			if b.deps.Metrics != nil {
				b.deps.Metrics.RecordSignal(sig.Strategy, string(sig.Action))
			}
			signals = append(signals, sig)
		}
	}

	sig, ok := b.deps.Aggregator.Aggregate(symbol, signals, now)
	if ok && b.deps.Metrics != nil {
		b.deps.Metrics.RecordAggregated(string(sig.Action))
	}
	if !ok {
		sig = nil
	}

	row := matrix.BuildRow(b.deps.Aggregator, matrix.Input{
		Symbol:          symbol,
		Quote:           quote,
		Candles:         candles,
		Results:         results,
		VolumeAnomalies: risk.VolumeAnomalies(candles, now.Add(-24*time.Hour), b.opts.AnomalyMultiplier),
		Now:             now,
	})

	if _, err := b.deps.Trades.UpdatePrice(ctx, symbol, quote.Price); err != nil {
		b.logger.Warn("mark to market failed", zap.String("symbol", symbol), zap.Error(err))
	}
	b.prices.Update(symbol, quote.Price, quote.ChangePercent24h)

	return row, sig, nil
}

// recordBook returns the snapshots kept for symbol (oldest first, within
// BookHistory) and then appends the current book.
func (b *Bot) recordBook(symbol string, book *core.OrderBook, now time.Time) []strategy.BookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-BookHistory)
	var kept []strategy.BookSnapshot
	for _, s := range b.books[symbol] {
		if s.At.After(cutoff) {
			kept = append(kept, s)
		}
	}
	prev := slices.Clone(kept)
	if book != nil {
		kept = append(kept, strategy.BookSnapshot{Book: *book, At: now})
	}
	b.books[symbol] = kept
	return prev
}

// SignalsMatrix implements realtime.Responder.
func (b *Bot) SignalsMatrix(ctx context.Context) realtime.SignalMatrixUpdate {
	return realtime.SignalMatrixUpdate{
		Rows:      b.deps.Matrix.Rows(ctx, b.now()),
		UpdatedAt: b.deps.Matrix.UpdatedAt(),
	}
}

// ActiveTrades implements realtime.Responder.
func (b *Bot) ActiveTrades(context.Context) realtime.TradeUpdate {
	return realtime.TradeUpdate{Trades: b.deps.Trades.Active()}
}

// PortfolioStatus implements realtime.Responder.
func (b *Bot) PortfolioStatus(context.Context) realtime.PortfolioUpdate {
	return realtime.PortfolioUpdate{Portfolio: b.deps.Trades.Portfolio()}
}
