package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markbunyevacz/lambda-extract/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lambda-extract",
	Short: "Tiered datasheet extraction pipeline",
	Long:  "Extracts structured product attributes from PDF datasheets via tiered strategies, merges them into confidence-scored golden records, and persists them to relational and search stores.",
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
