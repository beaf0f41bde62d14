package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hpa-platform/hpactl/internal/cli/session"
)

// NewPasswordCmd groups the password recovery commands
func NewPasswordCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Recover or reset your password",
	}

	cmd.AddCommand(newPasswordForgotCmd(app))
	cmd.AddCommand(newPasswordResetCmd(app))

	return cmd
}

func newPasswordForgotCmd(app *App) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot",
		Short: "Email a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasswordForgot(cmd.Context(), app, email)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address of the account")

	return cmd
}

func runPasswordForgot(ctx context.Context, app *App, email string) error {
	email, err := app.promptText("Email", email, "email", validateEmail)
	if err != nil {
		return err
	}

	form := session.ForgotPasswordForm{Email: email}
	if err := form.Validate(); err != nil {
		return err
	}

	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Store.ResetPassword(ctx, form.Email); err != nil {
		return fmt.Errorf("password reset request failed: %w", err)
	}

	app.printf("✓ If an account exists for %s, a reset link is on its way.\n", form.Email)
	return nil
}

func newPasswordResetCmd(app *App) *cobra.Command {
	var token, password string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password using a reset token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasswordReset(cmd.Context(), app, token, password)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Reset token from the email")
	cmd.Flags().StringVar(&password, "password", "", "New password (will prompt if not provided)")

	return cmd
}

func runPasswordReset(ctx context.Context, app *App, token, password string) error {
	token, err := app.promptText("Reset token", token, "token", validateRequired)
	if err != nil {
		return err
	}

	form := session.PasswordResetForm{Token: token, Password: password, ConfirmPassword: password}
	if password == "" {
		if form.Password, form.ConfirmPassword, err = app.readNewPassword(); err != nil {
			return err
		}
	}
	if err := form.Validate(); err != nil {
		return err
	}

	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Store.UpdatePassword(ctx, form); err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}

	app.println("✓ Password updated. Sign in with 'hpactl login'.")
	return nil
}

// NewVerifyEmailCmd creates the verify-email command
func NewVerifyEmailCmd(app *App) *cobra.Command {
	var token, resendTo string

	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Confirm your email address, or request a new verification email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyEmail(cmd.Context(), app, token, resendTo)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Verification token from the email")
	cmd.Flags().StringVar(&resendTo, "resend", "", "Send a new verification email to this address")
	cmd.MarkFlagsMutuallyExclusive("token", "resend")

	return cmd
}

func runVerifyEmail(ctx context.Context, app *App, token, resendTo string) error {
	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if resendTo != "" {
		if err := validateEmail(resendTo); err != nil {
			return err
		}
		if err := sess.API.ResendVerification(ctx, resendTo); err != nil {
			return fmt.Errorf("failed to resend verification email: %w", err)
		}
		app.printf("✓ Verification email sent to %s\n", resendTo)
		return nil
	}

	token, err = app.promptText("Verification token", token, "token", validateRequired)
	if err != nil {
		return err
	}
	if err := sess.API.VerifyEmail(ctx, token); err != nil {
		return fmt.Errorf("email verification failed: %w", err)
	}

	app.println("✓ Email verified")
	return nil
}
