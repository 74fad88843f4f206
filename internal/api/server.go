// Package api serves the dashboard REST endpoints and the realtime channel.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/tradebot/internal/analytics"
	handler "github.com/newthinker/tradebot/internal/api/handler/api"
	"github.com/newthinker/tradebot/internal/api/middleware"
	"github.com/newthinker/tradebot/internal/api/response"
	"github.com/newthinker/tradebot/internal/charts"
	"github.com/newthinker/tradebot/internal/feed"
	"github.com/newthinker/tradebot/internal/matrix"
	"github.com/newthinker/tradebot/internal/metrics"
	"github.com/newthinker/tradebot/internal/settings"
	"github.com/newthinker/tradebot/internal/storage/signal"
	"github.com/newthinker/tradebot/internal/trade"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for the trading bot
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	deps       Dependencies
	started    time.Time
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	CORS        []string
	MetricsPath string
}

// Bot is the lifecycle surface of the trading bot.
type Bot interface {
	handler.Controller
	Running() bool
	Uptime() time.Duration
}

// Dependencies holds the services the handlers read from.
type Dependencies struct {
	Signals   signal.Store
	Matrix    *matrix.Store
	Trades    *trade.Manager
	Feed      *feed.Feed
	Whales    *feed.Whales
	Analytics *analytics.Service
	Charts    *charts.Service
	Settings  *settings.Manager
	Bot       Bot
	// Backtest serves /api/backtest when set.
	Backtest handler.BacktestFunc
	// Realtime handles /ws upgrades. Nil disables the endpoint.
	Realtime http.Handler
	// Metrics enables request metrics and the scrape endpoint when set.
	Metrics *metrics.Registry
	// BaseContext bounds bots started over HTTP. Defaults to Background.
	BaseContext context.Context
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Signals == nil || deps.Trades == nil || deps.Settings == nil || deps.Bot == nil {
		return nil, fmt.Errorf("api: signals, trades, settings and bot are required")
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{
		logger:  logger.Named("api"),
		mux:     http.NewServeMux(),
		deps:    deps,
		started: time.Now(),
	}
	s.setupRoutes(cfg)

	mws := []func(http.Handler) http.Handler{metrics.LoggingMiddleware(s.logger)}
	if deps.Metrics != nil {
		mws = append(mws, metrics.HTTPMiddleware(deps.Metrics))
	}
	mws = append(mws,
		middleware.CORS(cfg.CORS),
		middleware.APIKeyAuth(cfg.APIKey, "/api/health", cfg.MetricsPath),
	)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      middleware.Chain(s.mux, mws...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) {
	d := s.deps

	signals := handler.NewSignalsHandler(d.Signals, d.Matrix, d.Trades, d.Whales)
	s.mux.HandleFunc("GET /api/signals/latest", signals.Latest)
	s.mux.HandleFunc("GET /api/signals/details/{symbol}", signals.Details)
	s.mux.HandleFunc("GET /api/signals/matrix", signals.Matrix)

	if d.Analytics != nil {
		analytics := handler.NewAnalyticsHandler(d.Analytics, d.Bot.Uptime)
		s.mux.HandleFunc("GET /api/analytics/detailed", analytics.Detailed)
		s.mux.HandleFunc("GET /api/analytics/performance", analytics.Performance)
		s.mux.HandleFunc("GET /api/dashboard/statistics", analytics.Statistics)
	}

	if d.Charts != nil {
		charts := handler.NewChartsHandler(d.Charts)
		s.mux.HandleFunc("GET /api/charts/candles/{symbol}", charts.Candles)
		s.mux.HandleFunc("GET /api/charts/indicators/{symbol}", charts.Indicators)
		s.mux.HandleFunc("GET /api/charts/multi/{symbols}", charts.Multi)
	}

	trades := handler.NewTradesHandler(d.Trades)
	s.mux.HandleFunc("GET /api/dashboard/balance", trades.Balance)
	s.mux.HandleFunc("GET /api/dashboard/positions", trades.Active)
	s.mux.HandleFunc("GET /api/dashboard/recent-trades", trades.Recent)
	s.mux.HandleFunc("GET /api/trades/active", trades.Active)
	s.mux.HandleFunc("GET /api/trades/history", trades.History)
	s.mux.HandleFunc("GET /api/trades/virtual", trades.Virtual)
	s.mux.HandleFunc("POST /api/trades/virtual", trades.OpenVirtual)
	s.mux.HandleFunc("POST /api/trades/close/{id}", trades.Close)
	s.mux.HandleFunc("POST /api/trades/modify/{id}", trades.Modify)
	s.mux.HandleFunc("POST /api/trades/close-all", trades.CloseAll)

	bot := handler.NewBotHandler(d.Bot, d.BaseContext)
	s.mux.HandleFunc("GET /api/bot/status", bot.Status)
	s.mux.HandleFunc("POST /api/bot/start", bot.Start)
	s.mux.HandleFunc("POST /api/bot/stop", bot.Stop)

	set := handler.NewSettingsHandler(d.Settings)
	s.mux.HandleFunc("GET /api/settings", set.Get)
	s.mux.HandleFunc("POST /api/settings/general", set.General)
	s.mux.HandleFunc("POST /api/settings/risk", set.Risk)
	s.mux.HandleFunc("GET /api/trading-pairs", set.Pairs)
	s.mux.HandleFunc("POST /api/trading-pairs", set.AddPair)
	s.mux.HandleFunc("DELETE /api/trading-pairs", set.RemovePair)
	s.mux.HandleFunc("GET /api/config/pairs", set.Pairs)
	s.mux.HandleFunc("POST /api/config/update", set.Update)
	s.mux.HandleFunc("POST /api/config/bulk-update", set.BulkUpdate)
	s.mux.HandleFunc("POST /api/config/reset", set.Reset)
	s.mux.HandleFunc("GET /api/config/export", set.Export)
	s.mux.HandleFunc("POST /api/config/import", set.Import)

	if d.Feed != nil && d.Whales != nil {
		fh := handler.NewFeedHandler(d.Feed, d.Whales)
		s.mux.HandleFunc("GET /api/news/latest", fh.News)
		s.mux.HandleFunc("POST /api/news", fh.PublishNews)
		s.mux.HandleFunc("GET /api/social/signals", fh.Social)
		s.mux.HandleFunc("POST /api/social/signals", fh.PublishSocial)
		s.mux.HandleFunc("GET /api/whales/transactions", fh.Whales)
		s.mux.HandleFunc("POST /api/whales/transactions", fh.AddWhale)
	}

	if d.Backtest != nil {
		bt := handler.NewBacktestHandler(d.Backtest)
		s.mux.HandleFunc("GET /api/backtest/{strategy}/{symbol}", bt.Run)
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if d.Realtime != nil {
		s.mux.Handle("GET /ws", d.Realtime)
	}
	if d.Metrics != nil {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"bot_running":    s.deps.Bot.Running(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}
