package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/movegrade"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest USERNAME...",
	Short: "Import chess.com games of one or more players",
	Long: `Download the monthly archives of each player from chess.com and add new
games to the analysis backlog. Archives of finished months are downloaded
once; the current month is refreshed on every run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	return withClient(cmd.Context(), cfg, func(ctx context.Context, client *movegrade.Client) error {
		var failed int
		for _, username := range args {
			sum, err := client.FetchAndStore(ctx, username)
			if errors.Is(err, movegrade.ErrNotFound) {
				fmt.Printf("%s: player not found\n", username)
				failed++
				continue
			}
			if err != nil {
				return fmt.Errorf("importing %s: %w", username, err)
			}
			fmt.Printf("%s: %d new games from %d archives (%d skipped, %d failed)\n",
				sum.Player, sum.Games, sum.Archives, sum.Skipped, sum.Failed)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d players not found", failed, len(args))
		}
		return nil
	})
}
