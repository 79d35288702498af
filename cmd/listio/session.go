package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/app"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and refresh the cache",
	Long: `Signs in with email and password. The password may also be given in
LISTIO_PASSWORD. The session token is stored in the local cache, sealed
when session_passphrase is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := loginPassword
		if password == "" {
			password = os.Getenv("LISTIO_PASSWORD")
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			profile, err := a.User.Login(ctx, api.Credentials{Email: loginEmail, Password: password})
			if err != nil {
				if errors.Is(err, api.ErrValidation) {
					return fmt.Errorf("email and password are required: %w", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", displayName(profile.Name, profile.Email))

			if _, err := a.Bootstrap(ctx); err != nil {
				return err
			}
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			a.User.Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	return email
}
