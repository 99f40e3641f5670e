package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "autoreply",
	Short: "Automated support mailbox reply pipeline",
	Long:  "Polls a support inbox over IMAP, categorizes mail with Claude, researches answers against a product knowledge base, and sends or drafts reviewed replies over SMTP.",
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
