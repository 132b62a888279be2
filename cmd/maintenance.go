package cmd

import (
	"context"
	"fmt"

	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Housekeeping tasks",
}

var pruneResetTokensCmd = &cobra.Command{
	Use:   "prune-reset-tokens",
	Short: "Delete expired password reset tokens",
	RunE:  runPruneResetTokens,
}

func init() {
	maintenanceCmd.AddCommand(pruneResetTokensCmd)
	rootCmd.AddCommand(maintenanceCmd)
}

func runPruneResetTokens(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err = configureLogging(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	removed, err := app.resets.PruneExpired(ctx)
	if err != nil {
		return err
	}

	logrus.WithField("removed", removed).Info("Expired password reset tokens pruned")
	fmt.Fprintf(cmd.OutOrStdout(), "removed: %d\n", removed)
	return nil
}
