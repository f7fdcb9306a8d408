package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/discochess/movegrade"
)

var showCmd = &cobra.Command{
	Use:   "show GAME_ID",
	Short: "Show the graded moves of a game",
	Long: `Print the move-by-move grading of an analyzed game.

Examples:
  # Annotated move text
  movegrade show 104857600

  # Full analysis as JSON
  movegrade show 104857600 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var showJSON bool

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "output the analysis as JSON")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	return withClient(cmd.Context(), cfg, func(ctx context.Context, client *movegrade.Client) error {
		a, err := client.GetAnalysis(ctx, args[0])
		switch {
		case errors.Is(err, movegrade.ErrNotFound):
			return fmt.Errorf("game %s not found", args[0])
		case errors.Is(err, movegrade.ErrNotAnalyzed):
			return fmt.Errorf("game %s has not been analyzed yet", args[0])
		case err != nil:
			return err
		}

		if showJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(a)
		}
		printAnalysis(a)
		return nil
	})
}

func printAnalysis(a *movegrade.Analysis) {
	fmt.Printf("Game: %s\n", a.GameID)
	if a.AnalyzedAt != nil {
		fmt.Printf("Analyzed: %s\n", a.AnalyzedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println()
	fmt.Println(a.Annotated())
	fmt.Println()
	for _, label := range []string{"blunder", "mistake", "dubious"} {
		fmt.Printf("%-8s %d\n", label+":", a.Count(label))
	}
}
