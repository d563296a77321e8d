package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/chanflow/internal/config"
	"github.com/aretw0/chanflow/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chanflow",
	Short: "chanflow runs off-chain state channel protocols",
	Long: `chanflow drives the Setup, Install and Uninstall handshakes between
counterparties identified by extended public keys, producing jointly signed
commitments for the next state of a channel.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "chanflow.yaml", "Path to the configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
}

// loadConfig reads the config named by --config and applies --log-level.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	logger, err := newLogger(cfg.LogLevel)
	return cfg, logger, err
}

func newLogger(levelName string) (*slog.Logger, error) {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	return logging.New(level), nil
}
