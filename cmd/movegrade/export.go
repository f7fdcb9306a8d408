package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/movegrade"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every analyzed game",
	Long: `Write every analyzed game as compressed JSON lines plus a manifest.

The destination is a local directory, gs://bucket/prefix or
s3://bucket/prefix.

Examples:
  movegrade export --dest ./export
  movegrade export --dest gs://my-bucket/movegrade --codec gzip`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("dest", "", "export destination")
	exportCmd.Flags().String("codec", "", "compression: zstd, gzip or none")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"export.dest":  "dest",
		"export.codec": "codec",
	})
	if err != nil {
		return err
	}

	return withClient(cmd.Context(), cfg, func(ctx context.Context, client *movegrade.Client) error {
		m, err := client.Export(ctx, cfg.Export.Dest)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("Location: %s\n", m.Location)
		fmt.Printf("File:     %s\n", m.File)
		fmt.Printf("Games:    %d\n", m.GameCount)
		fmt.Printf("Moves:    %d\n", m.MoveCount)
		return nil
	})
}
