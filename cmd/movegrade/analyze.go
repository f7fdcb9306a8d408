package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/movegrade"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Drain the analysis backlog",
	Long: `Claim eligible games in batches and grade every move until the backlog
is empty. Exits with an error if another process is already draining.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Int("batch-size", 0, "games claimed per batch")
	analyzeCmd.Flags().Int("concurrency", 0, "games analyzed in parallel")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"analysis.batch_size":  "batch-size",
		"analysis.concurrency": "concurrency",
	})
	if err != nil {
		return err
	}

	return withClient(cmd.Context(), cfg, func(ctx context.Context, client *movegrade.Client) error {
		sum, err := client.Drain(ctx)
		if errors.Is(err, movegrade.ErrBusy) {
			return fmt.Errorf("another process is draining the backlog")
		}
		fmt.Printf("Batches:         %d\n", sum.Batches)
		fmt.Printf("Claimed:         %d\n", sum.Claimed)
		fmt.Printf("Analyzed:        %d\n", sum.Analyzed)
		fmt.Printf("Failed:          %d\n", sum.Failed)
		fmt.Printf("Deferred:        %d\n", sum.Deferred)
		fmt.Printf("Commit failures: %d\n", sum.CommitFailures)
		if err != nil {
			return fmt.Errorf("drain failed: %w", err)
		}
		return nil
	})
}
