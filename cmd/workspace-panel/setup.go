package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var setupCmd = &cobra.Command{
	Use:   "setup <workspace-id>",
	Short: "Create the admins and users tables in a workspace database",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := withTimeout(cfg.Server.RequestTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	workspaceID := args[0]
	if err := a.workspaces.Setup(ctx, workspaceID); err != nil {
		return fmt.Errorf("setup workspace %s: %w", workspaceID, err)
	}

	logger.Info("workspace setup completed", zap.String("workspace_id", workspaceID))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Workspace %s database setup completed\n", workspaceID)
	return nil
}
