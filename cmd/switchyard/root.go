package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/switchyard/internal/config"
	"github.com/aretw0/switchyard/internal/logging"
)

// DefaultConfigFile is read when --config is not given and the file exists.
const DefaultConfigFile = "switchyard.yaml"

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "switchyard",
	Short: "Switchyard runs durable pipelines and routes their results",
	Long: `Switchyard polls endpoints for changed content, runs durable pipelines
and routes every completed result to downstream pipelines through
declarative rules.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := loadConfig(path, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			loaded.LogLevel = lvl
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration:\n%w", err)
		}
		cfg = loaded

		level, _ := logging.ParseLevel(cfg.LogLevel)
		if format, _ := cmd.Flags().GetString("log-format"); format == "json" {
			logger = logging.NewJSON(os.Stderr, level)
		} else {
			logger = logging.New(level)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string, explicit bool) (config.Config, error) {
	c, err := config.Load(path)
	if err == nil {
		return c, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Config{}, err
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", DefaultConfigFile, "Configuration file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
}
