package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orgenrich/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "orgenrich",
	Short:        "Checkpointed nonprofit enrichment for organization lists",
	Long:         "Matches organization records against ProPublica Nonprofit Explorer, extracts staff from their websites via Claude, and writes a resumable enriched snapshot.",
	SilenceUsage: true,
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
		_ = zap.L().Sync()
		os.Exit(1)
	}
}
