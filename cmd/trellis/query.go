package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/trellis"
)

var (
	flagLimit     int
	flagLanguage  string
	flagBlockType string
	flagDepth     int
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Full-text search over block names and source text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		results, err := engine.Query().Search(args[0], trellis.SearchOptions{
			Language:  flagLanguage,
			BlockType: flagBlockType,
			Limit:     flagLimit,
		})
		if err != nil {
			return err
		}
		type hit struct {
			ID   int64   `json:"id"`
			Name string  `json:"name,omitempty"`
			Type string  `json:"type"`
			Rank float64 `json:"rank"`
		}
		out := make([]hit, len(results))
		for i, r := range results {
			out[i] = hit{ID: r.Block.ID, Name: r.Block.SemanticName, Type: r.Block.Type, Rank: r.Rank}
		}
		return printJSON(out)
	},
}

var patternCmd = &cobra.Command{
	Use:   "pattern <name>",
	Short: "Run a predefined pattern analysis",
	Long:  "Patterns: untested_function, complex_function, long_method, many_parameters, duplicate_name, circular_dependency, sql_in_loop, hardcoded_secret, unsafe_execution, sync_io_in_async_context.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		matches, err := engine.Query().FindPattern(args[0])
		if err != nil {
			return err
		}
		type match struct {
			ID     int64  `json:"id"`
			Name   string `json:"name,omitempty"`
			Reason string `json:"reason"`
		}
		out := make([]match, len(matches))
		for i, m := range matches {
			out[i] = match{ID: m.Block.ID, Name: m.Block.SemanticName, Reason: m.Reason}
		}
		return printJSON(out)
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps <block-id>",
	Short: "Transitive dependency graph of a block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blockID, err := parseID(args[0])
		if err != nil {
			return err
		}
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		graph, err := engine.Query().DependencyGraph(blockID, flagDepth)
		if err != nil {
			return err
		}
		if graph == nil {
			return fmt.Errorf("block %d not found", blockID)
		}
		return printJSON(graph)
	},
}

var couplingCmd = &cobra.Command{
	Use:   "coupling <block-id>",
	Short: "Efferent/afferent coupling and instability of a block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blockID, err := parseID(args[0])
		if err != nil {
			return err
		}
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		metrics, err := engine.Query().Coupling(blockID)
		if err != nil {
			return err
		}
		return printJSON(metrics)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <migration-id>",
	Short: "Show a migration's status, statistics, and diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		migration, err := engine.Store().IngestMigrationByID(args[0])
		if err != nil {
			return err
		}
		if migration == nil {
			return fmt.Errorf("migration %s not found", args[0])
		}
		diags, err := engine.Store().DiagnosticsByMigration(args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"migration":   migration,
			"diagnostics": diags,
		})
	},
}

func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid block id %q", s)
	}
	return id, nil
}

func init() {
	searchCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum results")
	searchCmd.Flags().StringVar(&flagLanguage, "language", "", "restrict to one language")
	searchCmd.Flags().StringVar(&flagBlockType, "type", "", "restrict to one block type")
	depsCmd.Flags().IntVar(&flagDepth, "depth", -1, "traversal depth, -1 for unbounded")
}
