package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagDB string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "trellis",
	Short:         "Semantic code engine over tree-sitter and SQLite",
	Long:          "Trellis ingests polyglot repositories into a semantic block graph and answers structural queries, pattern analyses, and block-level version history over it.",
	SilenceErrors: true,
	SilenceUsage:  true,
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "trellis.db", "database path or sqlite:// DSN")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(patternCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(couplingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(branchCmd)
}
