package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagRepo string

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage semantic branches",
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name> [base-commit]",
	Short: "Create a branch at a base commit",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		base := ""
		if len(args) > 1 {
			base = args[1]
		}
		branch, err := engine.Brancher().CreateBranch(flagRepo, args[0], base)
		if err != nil {
			return err
		}
		return printJSON(branch)
	},
}

var branchMergeCmd = &cobra.Command{
	Use:   "merge <left> <right>",
	Short: "Three-way merge two branches per block",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		result, err := engine.Merger().Merge(flagRepo, args[0], args[1])
		if err != nil {
			return err
		}
		if result.Conflicts > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d conflict(s) recorded for external resolution\n", result.Conflicts)
		}
		return printJSON(result)
	},
}

func init() {
	branchCmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "repository name the branches belong to")
	branchCmd.MarkPersistentFlagRequired("repo")
	branchCmd.AddCommand(branchCreateCmd)
	branchCmd.AddCommand(branchMergeCmd)
}
