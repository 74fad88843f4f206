package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/newthinker/tradebot/internal/aggregator"
	"github.com/newthinker/tradebot/internal/alert"
	"github.com/newthinker/tradebot/internal/analytics"
	"github.com/newthinker/tradebot/internal/backtest"
	"github.com/newthinker/tradebot/internal/cache"
	"github.com/newthinker/tradebot/internal/charts"
	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/exchange"
	"github.com/newthinker/tradebot/internal/exchange/bybit"
	"github.com/newthinker/tradebot/internal/exchange/paper"
	"github.com/newthinker/tradebot/internal/feed"
	"github.com/newthinker/tradebot/internal/journal"
	"github.com/newthinker/tradebot/internal/matrix"
	"github.com/newthinker/tradebot/internal/metrics"
	"github.com/newthinker/tradebot/internal/notifier"
	"github.com/newthinker/tradebot/internal/notifier/telegram"
	"github.com/newthinker/tradebot/internal/notifier/webhook"
	"github.com/newthinker/tradebot/internal/realtime"
	"github.com/newthinker/tradebot/internal/retry"
	"github.com/newthinker/tradebot/internal/router"
	"github.com/newthinker/tradebot/internal/settings"
	"github.com/newthinker/tradebot/internal/storage/archive"
	"github.com/newthinker/tradebot/internal/storage/signal"
	"github.com/newthinker/tradebot/internal/strategy"
	"github.com/newthinker/tradebot/internal/strategy/ma_crossover"
	"github.com/newthinker/tradebot/internal/strategy/momentum"
	"github.com/newthinker/tradebot/internal/strategy/multi_indicator"
	"github.com/newthinker/tradebot/internal/strategy/order_book_analysis"
	"github.com/newthinker/tradebot/internal/strategy/sleeping_giants"
	"github.com/newthinker/tradebot/internal/strategy/whale_hunting"
	"github.com/newthinker/tradebot/internal/trade"
	"go.uber.org/zap"
)

// signalCapacity bounds the in-memory signal history.
const signalCapacity = 10000

// Factories builds the strategies known to the bot, keyed by config name.
var Factories = map[string]func() strategy.Strategy{
	"whale_hunting":       func() strategy.Strategy { return whale_hunting.New() },
	"sleeping_giants":     func() strategy.Strategy { return sleeping_giants.New() },
	"order_book_analysis": func() strategy.Strategy { return order_book_analysis.New() },
	"momentum":            func() strategy.Strategy { return momentum.New() },
	"ma_crossover":        func() strategy.Strategy { return ma_crossover.New() },
	"multi_indicator":     func() strategy.Strategy { return multi_indicator.New() },
}

// Runtime is the fully wired service graph.
type Runtime struct {
	Config     *config.Config
	Market     exchange.MarketData
	Exchange   exchange.Exchange
	Cache      cache.Cache
	Archive    archive.Storage
	Journal    journal.Writer
	Signals    *signal.MemoryStore
	Trades     *trade.Manager
	Settings   *settings.Manager
	Notifiers  *notifier.Registry
	Router     *router.Router
	Engine     *strategy.Engine
	Aggregator *aggregator.Aggregator
	Matrix     *matrix.Store
	Feed       *feed.Feed
	Whales     *feed.Whales
	Hub        *realtime.Hub
	Metrics    *metrics.Registry
	Analytics  *analytics.Service
	Charts     *charts.Service
	Bot        *Bot
	Backtester *backtest.Backtester
	Alerts     *alert.Evaluator

	closers []io.Closer
}

// NewMarket builds the Bybit client with the configured retry policy. It
// serves public market data even without API credentials.
func NewMarket(cfg *config.Config, logger *zap.Logger) *bybit.Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.New(
		retry.WithInitialInterval(cfg.Exchange.Retry.InitialInterval),
		retry.WithMaxInterval(cfg.Exchange.Retry.MaxInterval),
		retry.WithMultiplier(cfg.Exchange.Retry.Multiplier),
		retry.WithMaxRetries(cfg.Exchange.Retry.MaxRetries),
		retry.WithJitter(cfg.Exchange.Retry.Jitter),
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			logger.Debug("retrying exchange call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}),
	)
	return bybit.New(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Testnet:   cfg.Exchange.Testnet,
		Category:  cfg.Exchange.Category,
	}, policy, logger)
}

// Build wires every component from configuration and replays the journal.
func Build(cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{Config: cfg}

	venue := NewMarket(cfg, logger)
	rt.Market = venue
	switch cfg.Exchange.Provider {
	case "bybit":
		rt.Exchange = venue
	case "", "paper":
		rt.Exchange = paper.New(venue, "USDT", cfg.Trading.InitialCapital, cfg.Trading.CommissionRate, logger)
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown exchange provider %q", cfg.Exchange.Provider)
	}

	var err error
	if rt.Cache, err = cache.New(cfg.Cache); err != nil {
		return nil, err
	}
	rt.addCloser(rt.Cache)
	if rt.Archive, err = archive.New(cfg.Archive); err != nil {
		return nil, err
	}

	var wal *journal.Journal
	if cfg.Journal.Dir != "" {
		if wal, err = journal.Open(cfg.Journal, logger); err != nil {
			rt.Close()
			return nil, err
		}
		rt.Journal = wal
		rt.addCloser(wal)
	} else {
		rt.Journal = journal.Nop{}
	}

	rt.Signals = signal.NewMemoryStore(signalCapacity, rt.Journal)
	rt.Trades = trade.NewManager(trade.Config{
		InitialCapital: cfg.Trading.InitialCapital,
		CommissionRate: cfg.Trading.CommissionRate,
		MaxPositions:   cfg.Trading.MaxPositions,
		RiskPerTrade:   cfg.Trading.RiskPerTrade,
		StopLossPct:    cfg.Trading.StopLossPct,
		TakeProfitPct:  cfg.Trading.TakeProfitPct,
	}, rt.Exchange, rt.Journal, logger)

	if wal != nil {
		if err := restore(wal, rt.Trades, rt.Signals); err != nil {
			rt.Close()
			return nil, err
		}
	}

	if rt.Engine, err = buildEngine(cfg.Strategies, logger); err != nil {
		rt.Close()
		return nil, err
	}
	rt.Aggregator = aggregator.New(profiles(cfg.Strategies), cfg.Aggregator.Window, logger,
		aggregator.WithNeutralFloor(cfg.Aggregator.MinConfidence))

	weights := make(map[string]float64)
	for name, p := range rt.Aggregator.Profiles() {
		weights[name] = p.Weight
	}
	seeded := settings.FromConfig(cfg, weights)
	// the journaled ledger wins over the configured capital after a restart
	seeded.Risk.InitialCapital = rt.Trades.InitialCapital()
	rt.Settings = settings.NewManager(seeded, rt.Archive, logger)

	if rt.Notifiers, err = buildNotifiers(cfg.Notifiers); err != nil {
		rt.Close()
		return nil, err
	}
	rt.Router = router.New(router.Config{
		MinConfidence:    cfg.Router.MinConfidence,
		CooldownDuration: cfg.Router.Cooldown,
	}, rt.Notifiers, rt.Signals, logger)

	rt.Matrix = matrix.NewStore(rt.Cache, cfg.Cache.TTL, logger)
	rt.Feed = feed.New(cfg.Feed.Capacity, logger)
	rt.Whales = feed.NewWhales(cfg.Feed.Capacity, cfg.Feed.WhaleMinUSD)

	opts := []realtime.HubOption{realtime.WithAllowedOrigins(cfg.Server.CORS)}
	if cfg.Metrics.Enabled {
		rt.Metrics = metrics.NewRegistry()
		opts = append(opts, realtime.WithObserver(rt.Metrics))
	}
	rt.Hub = realtime.NewHub(nil, logger, opts...)
	rt.Feed.OnNews(func(item feed.NewsItem) {
		rt.Hub.Broadcast(realtime.NewsUpdate{NewsItem: item})
	})
	rt.Feed.OnSocial(func(s feed.SocialSignal) {
		rt.Hub.Broadcast(realtime.SocialSignal{SocialSignal: s})
	})

	rt.Analytics = analytics.NewService(rt.Signals, rt.Trades, logger)
	rt.Charts = charts.NewService(rt.Market, rt.Cache, logger)
	rt.Backtester = backtest.New(rt.Market, cfg.Trading.CommissionRate, logger)

	rules, err := alert.FromConfig(cfg.Alerts.Rules)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Alerts = alert.NewEvaluator(rules, rt.Notifiers, cfg.Alerts.Cooldown, logger)

	rt.Bot = New(Options{
		KlineInterval:      cfg.Exchange.KlineInterval,
		KlineLimit:         cfg.Exchange.KlineLimit,
		OrderBookDepth:     cfg.Exchange.OrderBookDepth,
		BroadcastInterval:  cfg.Realtime.BroadcastInterval,
		PriceFlushInterval: cfg.Realtime.PriceFlushInterval,
		CheckpointInterval: cfg.Journal.CheckpointInterval,
	}, Deps{
		Market:      rt.Market,
		Engine:      rt.Engine,
		Aggregator:  rt.Aggregator,
		Matrix:      rt.Matrix,
		Router:      rt.Router,
		Trades:      rt.Trades,
		AutoTrader:  trade.NewAutoTrader(rt.Trades, cfg.Trading.Virtual, logger),
		Settings:    rt.Settings,
		Whales:      rt.Whales,
		Broadcaster: rt.Hub,
		Metrics:     rt.Metrics,
		Alerts:      rt.Alerts,
	}, logger)
	rt.Hub.SetResponder(rt.Bot)

	logger.Info("runtime built",
		zap.String("exchange", cfg.Exchange.Provider),
		zap.Strings("strategies", rt.Engine.Names()),
		zap.Strings("notifiers", rt.Notifiers.Names()),
		zap.Strings("pairs", rt.Settings.Pairs()),
	)
	return rt, nil
}

func (rt *Runtime) addCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
}

// Close stops the bot and releases the journal and cache connections.
func (rt *Runtime) Close() error {
	if rt.Bot != nil && rt.Bot.Running() {
		_ = rt.Bot.Stop()
	}
	if rt.Hub != nil {
		rt.Hub.Close()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Start runs the bot; the HTTP server is owned by the caller.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.Bot.Start(ctx)
}

func restore(wal *journal.Journal, trades *trade.Manager, signals *signal.MemoryStore) error {
	err := wal.Replay(func(kind journal.Kind, id string, payload []byte) error {
		switch kind {
		case journal.KindTrade:
			return trades.Restore(payload)
		case journal.KindAccount:
			return trades.RestoreLedger(payload)
		case journal.KindSignal:
			return signals.Restore(payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replaying journal: %w", err)
	}
	trades.Reconcile()
	return nil
}

func buildEngine(cfgs map[string]config.StrategyConfig, logger *zap.Logger) (*strategy.Engine, error) {
	engine := strategy.NewEngine(logger.Named("strategy"))
	for name, sc := range cfgs {
		factory, ok := Factories[name]
		if !ok {
			return nil, core.Errorf(core.ErrConfigInvalid, "unknown strategy %q", name)
		}
		if !sc.Enabled {
			continue
		}
		s, err := newStrategy(factory, name, sc)
		if err != nil {
			return nil, err
		}
		engine.Register(s)
	}
	return engine, nil
}

func newStrategy(factory func() strategy.Strategy, name string, sc config.StrategyConfig) (strategy.Strategy, error) {
	s := factory()
	if err := s.Init(strategy.Config{Enabled: true, Params: sc.Params}); err != nil {
		return nil, core.Errorf(core.ErrConfigInvalid, "strategy %s: %w", name, err)
	}
	return s, nil
}

// profiles overlays the non-zero config fields on the built-in profiles.
func profiles(cfgs map[string]config.StrategyConfig) map[string]aggregator.Profile {
	defaults := aggregator.DefaultProfiles()
	out := make(map[string]aggregator.Profile, len(cfgs))
	for name, sc := range cfgs {
		p, ok := defaults[name]
		if !ok {
			p = aggregator.FallbackProfile
		}
		if sc.Weight > 0 {
			p.Weight = sc.Weight
		}
		if sc.Reliability > 0 {
			p.Reliability = sc.Reliability
		}
		if sc.MinConfidence > 0 {
			p.MinConfidence = sc.MinConfidence
		}
		if sc.Priority > 0 {
			p.Priority = sc.Priority
		}
		out[name] = p
	}
	return out
}

func buildNotifiers(cfgs map[string]config.NotifierConfig) (*notifier.Registry, error) {
	reg := notifier.NewRegistry()
	for name, nc := range cfgs {
		var n notifier.Notifier
		switch name {
		case "telegram":
			n = telegram.New("", "")
		case "webhook":
			n = webhook.New("", nil)
		default:
			return nil, core.Errorf(core.ErrConfigInvalid, "unknown notifier %q", name)
		}
		if !nc.Enabled {
			continue
		}
		if err := n.Init(nc); err != nil {
			return nil, core.Errorf(core.ErrConfigInvalid, "notifier %s: %w", name, err)
		}
		if err := reg.Register(n); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
