package main

import (
	"fmt"

	"github.com/newthinker/tradebot/internal/logger"
	"github.com/newthinker/tradebot/internal/settings"
	"github.com/spf13/cobra"
)

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Print the configured trading pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Must(debug, "warn")
		defer log.Sync()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}
		for _, p := range cfg.Trading.Pairs {
			fmt.Fprintln(cmd.OutOrStdout(), settings.NormalizePair(p))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pairsCmd)
}
