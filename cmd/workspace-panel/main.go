// Package main provides the entry point for the workspace panel service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFiles   []string

	rootCmd = &cobra.Command{
		Use:           "workspace-panel",
		Short:         "Super-admin panel for per-workspace databases",
		Long:          `Provisions one managed Postgres database per workspace and manages the admins and users inside each.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
