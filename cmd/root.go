package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiteline/scorescribe/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "scorescribe",
	Short: "Crowd-sourced event ranking tracker",
	Long:  "Ingests ranking screenshots, extracts the submitter's row, reconciles scores per event window, and answers leaderboard and peer-comparison queries.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
