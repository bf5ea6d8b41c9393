package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/switchyard/pkg/domain"
)

var pollCmd = &cobra.Command{
	Use:   "poll <endpoint-id>",
	Short: "Run change detection once for an endpoint",
	Long: `Polls a configured endpoint once and prints the completion as JSON. Pass
the completion of an earlier poll with --previous to detect new data; without
it a first poll never reports new data. --url polls an endpoint that is not
configured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		endpoint, ok := a.orch.Endpoint(args[0])
		if url, _ := cmd.Flags().GetString("url"); url != "" {
			endpoint = domain.PollingConfig{EndpointID: args[0], URL: url}
		} else if !ok {
			return fmt.Errorf("%w: endpoint %q is not configured", domain.ErrNotFound, args[0])
		}

		var previous *domain.ChangeDetectionCompletion
		if path, _ := cmd.Flags().GetString("previous"); path != "" {
			raw, err := readInput(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			previous = &domain.ChangeDetectionCompletion{}
			if err := json.Unmarshal(raw, previous); err != nil {
				return fmt.Errorf("parse previous completion: %w", err)
			}
		}

		_, completion, err := a.orch.Poll(cmd.Context(), endpoint, previous)
		if err != nil {
			return err
		}
		a.orch.Engine().Wait()
		return printJSON(cmd.OutOrStdout(), completion)
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().String("previous", "", "File (or - for stdin) holding the previous completion")
	pollCmd.Flags().String("url", "", "Poll this URL instead of a configured endpoint")
}
