package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/newthinker/tradebot/internal/logger"
	"github.com/newthinker/tradebot/internal/realtime"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchURL string
	watchKey string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running bot over its WebSocket channel",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "WebSocket URL (default from config)")
	watchCmd.Flags().StringVar(&watchKey, "api-key", "", "API key (default from config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug, "warn")
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	cc := cfg.Realtime.Client
	url := watchURL
	if url == "" {
		url = cc.URL
	}
	if url == "" {
		url = fmt.Sprintf("ws://localhost:%d/ws", cfg.Server.Port)
	}
	key := watchKey
	if key == "" {
		key = cfg.Server.APIKey
	}
	header := http.Header{}
	if key != "" {
		header.Set("X-API-Key", key)
	}

	client := realtime.NewClient(realtime.ClientConfig{
		URL:          url,
		Header:       header,
		BaseDelay:    cc.BaseDelay,
		MaxDelay:     cc.MaxDelay,
		MaxAttempts:  cc.MaxAttempts,
		PingInterval: cc.PingInterval,
		PongTimeout:  cc.PongTimeout,
	}, log)

	out := cmd.OutOrStdout()
	client.OnLifecycle(func(l realtime.Lifecycle) {
		switch l.Kind {
		case realtime.LifecycleReconnecting:
			fmt.Fprintf(out, "-- reconnecting (attempt %d, in %s)\n", l.Attempt, l.Delay)
		case realtime.LifecycleDisconnected:
			fmt.Fprintf(out, "-- disconnected (clean=%v)\n", l.Clean)
		default:
			fmt.Fprintf(out, "-- %s\n", l.Kind)
		}
	})
	realtime.Handle(client, func(e realtime.SignalMatrixUpdate) {
		fmt.Fprintf(out, "[matrix] %d pairs at %s\n", len(e.Rows), e.UpdatedAt.Format("15:04:05"))
		for _, r := range e.Rows {
			fmt.Fprintf(out, "  %-10s %12.4f  %-11s %.2f  risk=%s\n",
				r.Symbol, r.CurrentPrice, r.Aggregated.Action, r.Aggregated.Confidence, r.Risk.Level)
		}
	})
	realtime.Handle(client, func(e realtime.PriceUpdate) {
		for _, p := range e.Prices {
			fmt.Fprintf(out, "[price] %s %.4f (%+.2f%%)\n", p.Symbol, p.Price, p.Change24h)
		}
	})
	realtime.Handle(client, func(e realtime.TradeOpened) {
		fmt.Fprintf(out, "[open] %s %s %s qty=%.6f @ %.4f\n", e.Trade.ID, e.Trade.Side, e.Trade.Symbol, e.Trade.Quantity, e.Trade.EntryPrice)
	})
	realtime.Handle(client, func(e realtime.PositionClosed) {
		fmt.Fprintf(out, "[close] %s %s pnl=%.2f (%s)\n", e.Trade.ID, e.Trade.Symbol, e.Trade.PnL, e.Trade.CloseReason)
	})
	realtime.Handle(client, func(e realtime.TradeUpdate) {
		fmt.Fprintf(out, "[trades] %d active\n", len(e.Trades))
	})
	realtime.Handle(client, func(e realtime.PortfolioUpdate) {
		fmt.Fprintf(out, "[portfolio] total=%.2f available=%.2f unrealized=%.2f open=%d\n",
			e.Total, e.Available, e.Unrealized, e.OpenPositions)
	})
	realtime.Handle(client, func(e realtime.BotStatus) {
		fmt.Fprintf(out, "[bot] %s %s\n", e.Status, e.StatusMessage)
	})
	realtime.Handle(client, func(e realtime.NewsUpdate) {
		fmt.Fprintf(out, "[news] %s (%s)\n", e.Title, e.SentimentLabel)
	})
	realtime.Handle(client, func(e realtime.SocialSignal) {
		fmt.Fprintf(out, "[social] %s %v %s\n", e.Platform, e.MentionedSymbols, e.Sentiment)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Debug("watching", zap.String("url", url))
	err = client.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
