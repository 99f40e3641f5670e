package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/autoreply/internal/knowledge"
)

var kbLoadDir string

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the product knowledge base",
}

var kbLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Index documents from a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		kb, err := knowledge.Open(cfg.Knowledge.DatabasePath, cfg.Knowledge.MaxDocs)
		if err != nil {
			return err
		}
		defer kb.Close()

		n, err := kb.LoadDir(cmd.Context(), kbLoadDir)
		if err != nil {
			return err
		}
		zap.L().Info("knowledge base loaded", zap.Int("documents", n))
		return nil
	},
}

var kbSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a retrieval query against the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kb, err := knowledge.Open(cfg.Knowledge.DatabasePath, cfg.Knowledge.MaxDocs)
		if err != nil {
			return err
		}
		defer kb.Close()

		docs, err := kb.Search(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, d := range docs {
			fmt.Printf("## %s\n%s\n\n", d.Title, d.Content)
		}
		return nil
	},
}

func init() {
	kbLoadCmd.Flags().StringVar(&kbLoadDir, "dir", "", "directory of .md/.txt documents (required)")
	_ = kbLoadCmd.MarkFlagRequired("dir")
	kbCmd.AddCommand(kbLoadCmd)
	kbCmd.AddCommand(kbSearchCmd)
	rootCmd.AddCommand(kbCmd)
}
