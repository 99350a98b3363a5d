package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "brands",
	Short: "Menswear brand prospecting pipeline",
	Long:  "Discovers premium menswear brands for a city, validates them with Claude behind human approval gates, and keeps a curated prospect list.",
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
