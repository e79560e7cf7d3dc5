package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/trellis"
)

var (
	flagRef          string
	flagLanguages    string
	flagIncludeTests bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path|url>",
	Short: "Ingest a repository into the semantic store",
	Long:  "Parses source files with tree-sitter, extracts the block model, and commits the graph per container. URLs are shallow-cloned.",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&flagRef, "ref", "", "branch or tag to clone (URL sources only)")
	ingestCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
	ingestCmd.Flags().BoolVar(&flagIncludeTests, "include-tests", true, "ingest test files")
}

func runIngest(cmd *cobra.Command, args []string) error {
	start := time.Now()

	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	src := trellis.Source{Path: args[0]}
	if strings.Contains(args[0], "://") || strings.HasPrefix(args[0], "git@") {
		src = trellis.Source{URL: args[0], Ref: flagRef}
	}

	opts := trellis.IngestOptions{IncludeTests: flagIncludeTests}
	if flagLanguages != "" {
		for _, l := range strings.Split(flagLanguages, ",") {
			opts.Languages = append(opts.Languages, strings.TrimSpace(l))
		}
	}

	migrationID, err := engine.Ingest(cmd.Context(), src, opts)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	migration, err := engine.Store().IngestMigrationByID(migrationID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Migration %s %s in %s\n", migrationID, migration.Status, time.Since(start).Round(time.Millisecond))
	return printJSON(migration.Stats)
}

func openEngine() (*trellis.Engine, error) {
	dsn := flagDB
	if env := os.Getenv("DATABASE_URL"); env != "" && flagDB == "trellis.db" {
		dsn = env
	}
	return trellis.New(dsn)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
