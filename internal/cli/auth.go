package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/proploc14/proploc/internal/session"
)

func newLoginCmd(app func() *App) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store a session credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()

			if username == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Username: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading username: %w", err)
				}
				username = strings.TrimSpace(line)
			}
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				raw, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
				password = string(raw)
			}

			if err := a.session.Login(cmd.Context(), username, password); err != nil {
				if errors.Is(err, session.ErrInvalidCredentials) {
					// The one failure surfaced verbatim to the user.
					return errors.New("login failed, please check your credentials")
				}
				return fmt.Errorf("login failed: %w", err)
			}

			snap := a.session.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", snap.Profile.Username)
			if dest := a.ReturnTo(); dest != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Returning to %s\n", dest)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Destroy the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app().session.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newRegisterCmd(app func() *App) *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || email == "" || password == "" {
				return errors.New("--username, --email and --password are required")
			}
			if !strings.Contains(email, "@") {
				return errors.New("email address looks invalid")
			}

			if err := app().session.Register(cmd.Context(), username, email, password); err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s created, run `proploc login` to sign in\n", username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func newWhoamiCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := app().session.Snapshot()
			if !snap.Authenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s", snap.Profile.Username)
			switch {
			case snap.IsAdmin():
				fmt.Fprint(cmd.OutOrStdout(), " (administrator)")
			case snap.IsPropertyOwner():
				fmt.Fprint(cmd.OutOrStdout(), " (property owner)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
