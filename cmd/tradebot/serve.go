package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/tradebot/internal/api"
	"github.com/newthinker/tradebot/internal/app"
	"github.com/newthinker/tradebot/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var noAutostart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bot and its API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noAutostart, "no-autostart", false, "serve the API without starting the analysis loop")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug, "")
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if !debug && cfg.Log.Level != "" {
		log = logger.Must(false, cfg.Log.Level)
	}

	rt, err := app.Build(cfg, log)
	if err != nil {
		return fmt.Errorf("building runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("closing runtime", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		CORS:        cfg.Server.CORS,
		MetricsPath: cfg.Metrics.Path,
	}, api.Dependencies{
		Signals:     rt.Signals,
		Matrix:      rt.Matrix,
		Trades:      rt.Trades,
		Feed:        rt.Feed,
		Whales:      rt.Whales,
		Analytics:   rt.Analytics,
		Charts:      rt.Charts,
		Settings:    rt.Settings,
		Bot:         rt.Bot,
		Backtest:    rt.Backtest,
		Realtime:    rt.Hub,
		Metrics:     rt.Metrics,
		BaseContext: ctx,
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if !noAutostart {
		if err := rt.Start(ctx); err != nil {
			return fmt.Errorf("starting bot: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down tradebot")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
