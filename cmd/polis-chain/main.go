// Package main is the entry point for the polis-chain binary.
// It routes CloudEvents through a fixed three-step chain, either as a
// long-running HTTP service or as a one-shot job.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/polisai/polis-chain/pkg/config"
	"github.com/polisai/polis-chain/pkg/jobsink"
	"github.com/polisai/polis-chain/pkg/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command. Without a subcommand it picks job or
// service mode from the job mode environment flag.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polis-chain",
		Short: "CloudEvents step router for a three-step chain",
		Long: `Routes CloudEvents through the chain cli -> step-one -> step-two -> step-three.

With CE_FROM_FILE=on the trigger event is read from the job sink mount, routed,
and every resulting post is awaited before exit. Otherwise an HTTP service
replies to each inbound event with its successor.`,
		SilenceUsage: true,
		RunE:         runAuto,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to configuration file (YAML)")
	flags.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.Bool("pretty", false, "Enable text console logging")
	flags.String("listen", "", "Address to listen on in service mode")
	flags.Int("fan-out-scale", 0, "Number of events produced by a fan-out")

	rootCmd.AddCommand(newServeCmd(), newJobCmd(), newSendCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP routing service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, level, err := setup(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg, logger, level)
		},
	}
}

func newJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job",
		Short: "Route the job sink trigger event once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, _, err := setup(cmd)
			if err != nil {
				return err
			}
			return runJob(cmd.Context(), cfg, logger)
		},
	}
}

func runAuto(cmd *cobra.Command, _ []string) error {
	cfg, logger, level, err := setup(cmd)
	if err != nil {
		return err
	}

	jobMode, err := jobsink.JobMode(os.LookupEnv, cfg.Job.EnvFlag)
	if err != nil {
		return err
	}
	if jobMode {
		return runJob(cmd.Context(), cfg, logger)
	}
	return runServe(cmd.Context(), cmd, cfg, logger, level)
}

// setup loads configuration, applies flag overrides and installs the logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, *slog.LevelVar, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	level := new(slog.LevelVar)
	logger := logging.NewLogger(logging.Config{
		Level:    cfg.Logging.Level,
		Pretty:   cfg.Logging.Pretty,
		Output:   cmd.ErrOrStderr(),
		LevelVar: level,
	})
	slog.SetDefault(logger)

	return cfg, logger, level, nil
}

// loadConfig reads the config file and environment, then applies any flag
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyFlagOverrides copies every flag the user set explicitly into cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("log-level") {
		if cfg.Logging.Level, err = flags.GetString("log-level"); err != nil {
			return err
		}
	}
	if flags.Changed("pretty") {
		if cfg.Logging.Pretty, err = flags.GetBool("pretty"); err != nil {
			return err
		}
	}
	if flags.Changed("listen") {
		if cfg.Server.ListenAddress, err = flags.GetString("listen"); err != nil {
			return err
		}
	}
	if flags.Changed("fan-out-scale") {
		if cfg.Router.FanOutScale, err = flags.GetInt("fan-out-scale"); err != nil {
			return err
		}
	}
	return nil
}
