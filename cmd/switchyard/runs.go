package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/switchyard/internal/presentation/graph"
	"github.com/aretw0/switchyard/internal/presentation/tui"
	"github.com/aretw0/switchyard/pkg/domain"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored pipeline runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		all, err := a.orch.Engine().List(cmd.Context())
		if err != nil {
			return err
		}
		pipelineName, _ := cmd.Flags().GetString("pipeline")
		status, _ := cmd.Flags().GetString("status")
		runs := make([]domain.RunState, 0, len(all))
		for _, r := range all {
			if pipelineName != "" && r.Pipeline != pipelineName {
				continue
			}
			if status != "" && !strings.EqualFold(string(r.Status), status) {
				continue
			}
			runs = append(runs, r)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		return printMarkdown(cmd.OutOrStdout(), tui.RunsMarkdown(runs))
	},
}

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show one run with its journal and dispatches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.orch.Engine().Query(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asGraph, _ := cmd.Flags().GetBool("graph"); asGraph {
			var children []domain.RunState
			for _, d := range run.Dispatches {
				if child, err := a.orch.Engine().Query(cmd.Context(), d.RunID); err == nil {
					children = append(children, *child)
				}
			}
			_, err := fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(cfg.Routes, nil, graph.OverlayFor(run, children)))
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), run)
		}
		return printMarkdown(cmd.OutOrStdout(), tui.RunMarkdown(run))
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsGetCmd)

	runsListCmd.Flags().String("pipeline", "", "Only runs of this pipeline")
	runsListCmd.Flags().String("status", "", "Only runs with this status")
	runsCmd.PersistentFlags().Bool("json", false, "Print JSON")
	runsGetCmd.Flags().Bool("graph", false, "Print the route graph highlighting the run and its children")
}
