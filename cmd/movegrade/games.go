package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/discochess/movegrade"
)

var gamesCmd = &cobra.Command{
	Use:   "games USERNAME",
	Short: "List the stored games of a player",
	Args:  cobra.ExactArgs(1),
	RunE:  runGames,
}

func init() {
	rootCmd.AddCommand(gamesCmd)
}

func runGames(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	return withClient(cmd.Context(), cfg, func(ctx context.Context, client *movegrade.Client) error {
		games, err := client.PlayerGames(ctx, args[0])
		if errors.Is(err, movegrade.ErrNotFound) {
			return fmt.Errorf("player %s has not been imported; run 'movegrade ingest %s' first", args[0], args[0])
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "GAME\tENDED\tWHITE\tBLACK\tSTATUS")
		for _, g := range games {
			fmt.Fprintf(w, "%s\t%s\t%s (%d)\t%s (%d)\t%s\n",
				g.ID, g.EndTime.Format("2006-01-02"),
				g.White.Username, g.White.Rating,
				g.Black.Username, g.Black.Rating,
				g.Status)
		}
		return w.Flush()
	})
}
