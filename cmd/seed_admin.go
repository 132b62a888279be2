package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/app/types"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	seedAdminEmail    string
	seedAdminPassword string
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create an administrator account",
	Long:  `Create an account holding the Admin and User roles. The usual registration rules apply; an already registered email is reported and left untouched.`,
	RunE:  runSeedAdmin,
}

func init() {
	seedAdminCmd.Flags().StringVar(&seedAdminEmail, "email", "", "administrator email")
	seedAdminCmd.Flags().StringVar(&seedAdminPassword, "password", "", "administrator password")
	_ = seedAdminCmd.MarkFlagRequired("email")
	_ = seedAdminCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(seedAdminCmd)
}

func runSeedAdmin(cmd *cobra.Command, _ []string) error {
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

	account, err := app.accounts.Provision(ctx, &types.RegisterRequest{
		Email:           seedAdminEmail,
		Password:        seedAdminPassword,
		ConfirmPassword: seedAdminPassword,
	}, entity.RoleAdmin, entity.RoleUser)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateEmail) {
			logrus.WithField("email", seedAdminEmail).Warn("Administrator already exists")
			return nil
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "account_id: %s\nemail: %s\n", account.ID, account.Email)
	return nil
}
