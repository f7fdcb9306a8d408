// Package main provides the movegrade CLI: it serves the HTTP API, imports
// chess.com games and drains the analysis backlog.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
