package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/tradebot/internal/app"
	"github.com/newthinker/tradebot/internal/backtest"
	"github.com/newthinker/tradebot/internal/logger"
	"github.com/spf13/cobra"
)

var (
	btInterval string
	btLimit    int
	btJSON     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest <strategy> <symbol>",
	Short: "Replay a candle-driven strategy over recent klines",
	Long: fmt.Sprintf(`Replays a strategy over the most recent klines from the exchange and
reports the simulated long trades. Backtestable strategies: %s.`, strings.Join(app.Backtestable(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&btInterval, "interval", backtest.DefaultInterval, "kline interval")
	backtestCmd.Flags().IntVar(&btLimit, "limit", backtest.DefaultLimit, "number of klines to replay")
	backtestCmd.Flags().BoolVar(&btJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug, "warn")
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	bt := backtest.New(app.NewMarket(cfg, log), cfg.Trading.CommissionRate, log)
	res, err := app.Backtest(cmd.Context(), bt, cfg, args[0], backtest.Request{
		Symbol:   args[1],
		Interval: btInterval,
		Limit:    btLimit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if btJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "%s on %s %s: %d bars, %s to %s\n", res.Strategy, res.Symbol, res.Interval,
		res.Bars, res.StartDate.Format("2006-01-02 15:04"), res.EndDate.Format("2006-01-02 15:04"))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tPRICE\tEXIT\tPRICE\tREASON\tRETURN")
	for _, t := range res.Trades {
		fmt.Fprintf(tw, "%s\t%.4f\t%s\t%.4f\t%s\t%+.2f%%\n",
			t.EntryTime.Format("01-02 15:04"), t.EntryPrice,
			t.ExitTime.Format("01-02 15:04"), t.ExitPrice, t.ExitReason, t.Return*100)
	}
	tw.Flush()

	s := res.Stats
	fmt.Fprintf(out, "\ntrades %d (%d open)  win rate %.1f%%  return %+.2f%%  max drawdown %.2f%%\n",
		s.TotalTrades, s.OpenAtEnd, s.WinRate, s.TotalReturn, s.MaxDrawdown)
	fmt.Fprintf(out, "avg %+.2f%%  best %+.2f%%  worst %+.2f%%  profit factor %.2f  sharpe %.2f\n",
		s.AvgReturn, s.BestTrade, s.WorstTrade, s.ProfitFactor, s.SharpeRatio)
	return nil
}
