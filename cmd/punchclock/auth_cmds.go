package main

import (
	"fmt"

	"github.com/jrsteele09/go-punch-clock/deeplink"
	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/spf13/cobra"
)

func newSignUpCmd(a *app) *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.sessionStore(cmd.Context())
			if err != nil {
				return err
			}
			session, user, err := store.SignUp(cmd.Context(), email, password, name)
			if err != nil {
				return err
			}
			if session == nil {
				fmt.Fprintf(a.out, "Account created for %s. Confirm your email before logging in.\n", user.Email)
				return nil
			}
			fmt.Fprintf(a.out, "Account created. Signed in as %s (%s).\n", user.Metadata.FullName, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password, at least 6 characters")
	cmd.Flags().StringVar(&name, "name", "", "Full name")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.sessionStore(cmd.Context())
			if err != nil {
				return err
			}
			session, err := store.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Signed in as %s.\n", displayName(session.User))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.sessionStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func newResetPasswordCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Email a password recovery link",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.sessionStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.RequestPasswordReset(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "If an account exists for %s, a recovery link is on its way.\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	return cmd
}

func newNewPasswordCmd(a *app) *cobra.Command {
	var link, password, confirmation string
	cmd := &cobra.Command{
		Use:   "new-password",
		Short: "Set a new password from a recovery link",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.sessionStore(ctx)
			if err != nil {
				return err
			}
			processor, err := deeplink.NewProcessor(deeplink.NewChanSource(link, nil))
			if err != nil {
				return err
			}

			var adopted *sessions.Session
			var adoptErr error
			handler := deeplink.RecoveryHandler(ctx, store,
				func(s *sessions.Session) { adopted = s },
				func(err error) { adoptErr = err },
			)
			if !processor.CheckInitialLink(ctx, handler) {
				return apperrors.AuthErr(apperrors.ErrMissingField, "link is required")
			}
			if adoptErr != nil {
				return adoptErr
			}
			if adopted == nil {
				return apperrors.AuthErr(apperrors.ErrInvalidRecoveryToken, "link carries no recovery session")
			}

			if err := store.UpdatePassword(ctx, password, confirmation); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Password updated for %s.\n", adopted.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&link, "link", "", "Recovery link from the email")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	cmd.Flags().StringVar(&confirmation, "confirm", "", "New password again")
	return cmd
}

func newWhoAmICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.sessionStore(cmd.Context())
			if err != nil {
				return err
			}
			session, err := store.GetSession(cmd.Context())
			if err != nil {
				return err
			}
			if session == nil {
				fmt.Fprintln(a.out, "Not signed in.")
				return nil
			}
			fmt.Fprintf(a.out, "%s <%s> id=%s\n", displayName(session.User), session.User.Email, session.User.ID)
			return nil
		},
	}
}

func displayName(u sessions.User) string {
	if u.Metadata.FullName != "" {
		return u.Metadata.FullName
	}
	return u.Email
}
