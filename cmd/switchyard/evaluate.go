package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/switchyard/internal/presentation/tui"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <response-type> <file|->",
	Short: "Evaluate a JSON response against the configured routes",
	Long: `Routes the JSON document in file (or stdin) as if a pipeline declaring
response-type had completed with it, and prints the resulting dispatches.
No pipeline is started.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd.InOrStdin(), args[1])
		if err != nil {
			return err
		}
		var response any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&response); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}

		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		result := a.orch.Evaluate(cmd.Context(), args[0], response)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), result)
		}
		return printMarkdown(cmd.OutOrStdout(), tui.DispatchMarkdown(args[0], result))
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().Bool("json", false, "Print the dispatch result as JSON")
}
