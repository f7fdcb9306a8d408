package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/movegrade"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Return orphaned claims to the backlog",
	Long: `Reset games that were claimed longer than sweep.stale_after ago, for
example by a process that crashed mid-batch, so that the next drain picks
them up again.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().Duration("stale-after", 0, "claim age after which a game is reset")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"sweep.stale_after": "stale-after"})
	if err != nil {
		return err
	}

	return withClient(cmd.Context(), cfg, func(ctx context.Context, client *movegrade.Client) error {
		n, err := client.SweepStale(ctx)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		fmt.Printf("Reset %d stale claims.\n", n)
		return nil
	})
}
