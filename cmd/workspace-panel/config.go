package main

import (
	"github.com/spf13/cobra"

	"github.com/devrev/workspace-panel/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with credentials redacted",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	data, err := cfg.Redacted().YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
