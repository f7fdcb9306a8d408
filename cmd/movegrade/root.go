package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/discochess/movegrade/internal/config"
)

var (
	// Global flags.
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "movegrade",
	Short: "Grade every move of your chess games with a UCI engine",
	Long: `Movegrade imports chess.com games into a shared backlog and grades
every move with a UCI engine such as Stockfish.

Settings come from defaults, an optional config file, MOVEGRADE_*
environment variables and flags, in increasing precedence.

Examples:
  # Serve the HTTP API
  movegrade serve --dsn postgres://localhost/movegrade

  # Import a player's games and analyze the backlog
  movegrade ingest hikaru
  movegrade analyze

  # Show one graded game
  movegrade show 104857600`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (yaml, toml or json)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.String("driver", "", "store driver: postgres or memory")
	pf.String("dsn", "", "postgres connection string")
	pf.String("engine", "", "path to the UCI engine binary")
}

// loadConfig reads the configuration, letting the named flags of cmd
// override their config keys.
func loadConfig(cmd *cobra.Command, keys map[string]string) (*config.Config, error) {
	flags := map[string]*pflag.Flag{
		"store.driver": cmd.Flags().Lookup("driver"),
		"store.dsn":    cmd.Flags().Lookup("dsn"),
		"engine.path":  cmd.Flags().Lookup("engine"),
	}
	for key, name := range keys {
		flags[key] = cmd.Flags().Lookup(name)
	}
	return config.Load(configPath, flags)
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
