package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/discochess/movegrade/internal/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify CENTIPAWNS...",
	Short: "Print the quality label of evaluation deltas",
	Long: `Print the quality label and glyph for evaluation deltas given in
centipawns from the mover's point of view.

Example:
  movegrade classify -- -320 -40 0 120`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		delta, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid delta %q: %w", arg, err)
		}
		q := classify.Classify(delta)
		fmt.Printf("%6d  %-20s %s\n", delta, q, q.Symbol())
	}
	return nil
}
