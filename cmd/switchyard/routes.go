package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/switchyard/internal/presentation/graph"
	"github.com/aretw0/switchyard/internal/presentation/tui"
	"github.com/aretw0/switchyard/internal/snapshot"
	"github.com/aretw0/switchyard/pkg/changedetect"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Show the configured routes",
	Long: `Prints the configured routes in evaluation order as a table, as JSON or
as a Mermaid flowchart of pipelines and the response types routed between them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out := cmd.OutOrStdout()
		switch format {
		case "table":
			return printMarkdown(out, tui.RoutesMarkdown(cfg.Routes))
		case "json":
			return printJSON(out, cfg.Routes)
		case "mermaid":
			producers := map[string]string{
				changedetect.PipelineName: "ChangeDetectionCompletion",
				snapshot.PipelineName:     snapshot.ResponseType,
			}
			_, err := fmt.Fprint(out, graph.GenerateMermaid(cfg.Routes, producers, nil))
			return err
		}
		return fmt.Errorf("unknown format %q (table, json, mermaid)", format)
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
	routesCmd.Flags().StringP("format", "f", "table", "Output format: table, json or mermaid")
}
