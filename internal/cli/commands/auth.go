package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hpa-platform/hpactl/internal/cli/session"
	"github.com/hpa-platform/hpactl/internal/models"
)

func validateEmail(value string) error {
	if !session.ValidEmail(value) {
		return errors.New("invalid email address")
	}
	return nil
}

func validateRequired(value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("this field is required")
	}
	return nil
}

// NewLoginCmd creates the login command
func NewLoginCmd(app *App) *cobra.Command {
	var email, password string
	var remember bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the HPA console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), app, email, password, remember)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set HPA_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set HPA_PASSWORD, will prompt if not provided)")
	cmd.Flags().BoolVar(&remember, "remember", false, "Remember the signed-in user on this machine")

	return cmd
}

func runLogin(ctx context.Context, app *App, email, password string, remember bool) error {
	// Check for environment variables (useful for CI/CD)
	if email == "" {
		email = os.Getenv("HPA_EMAIL")
	}
	if password == "" {
		password = os.Getenv("HPA_PASSWORD")
	}

	email, err := app.promptText("Email", email, "email", validateEmail)
	if err != nil {
		return err
	}
	if password == "" {
		if password, err = app.readPassword("Password"); err != nil {
			return err
		}
	}

	form := session.LoginForm{Email: email, Password: password, RememberMe: remember}
	if err := form.Validate(); err != nil {
		return err
	}

	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	app.printf("Logging in to %s...\n", app.cfg.API.BaseURL)

	if err := sess.Store.Login(ctx, form); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	app.println("✓ Login successful!")
	printUserSummary(app, sess.Store.State().User)
	return nil
}

// NewRegisterCmd creates the register command
func NewRegisterCmd(app *App) *cobra.Command {
	var form session.RegisterForm

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd.Context(), app, form)
		},
	}

	cmd.Flags().StringVar(&form.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&form.Password, "password", "", "Password (will prompt if not provided)")
	cmd.Flags().StringVar(&form.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&form.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&form.TenantName, "tenant", "", "Organization name (optional)")
	cmd.Flags().BoolVar(&form.TermsAccepted, "accept-terms", false, "Accept the terms of service")

	return cmd
}

func runRegister(ctx context.Context, app *App, form session.RegisterForm) error {
	var err error

	if form.Email, err = app.promptText("Email", form.Email, "email", validateEmail); err != nil {
		return err
	}
	if form.FirstName, err = app.promptText("First name", form.FirstName, "first-name", validateRequired); err != nil {
		return err
	}
	if form.LastName, err = app.promptText("Last name", form.LastName, "last-name", validateRequired); err != nil {
		return err
	}

	if form.Password == "" {
		if form.Password, form.ConfirmPassword, err = app.readNewPassword(); err != nil {
			return err
		}
	} else {
		form.ConfirmPassword = form.Password
	}

	if !form.TermsAccepted {
		if form.TermsAccepted, err = app.confirm("Accept the terms of service"); err != nil {
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

	if err := sess.Store.Register(ctx, form); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	app.println("✓ Account created!")
	printUserSummary(app, sess.Store.State().User)
	app.println("\nCheck your inbox to verify your email address (hpactl verify-email --token <token>).")
	return nil
}

// NewLogoutCmd creates the logout command
func NewLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd.Context(), app)
		},
	}
}

func runLogout(ctx context.Context, app *App) error {
	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.Store.Initialize(ctx)
	wasAuthenticated := sess.Store.Status() == session.StatusAuthenticated

	sess.Store.Logout(ctx)

	if !wasAuthenticated {
		app.println("Not logged in.")
		return nil
	}
	app.println("✓ Logged out")
	return nil
}

// whoami is the structured form of the whoami output
type whoami struct {
	User           *models.AuthUser `json:"user" yaml:"user"`
	SessionExpires *time.Time       `json:"sessionExpires,omitempty" yaml:"session_expires,omitempty"`
}

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd.Context(), app, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", FormatTable, "Output format (table, json, yaml)")

	return cmd
}

func runWhoami(ctx context.Context, app *App, output string) error {
	if err := validFormat(output); err != nil {
		return err
	}

	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := requireAuth(ctx, sess); err != nil {
		return err
	}

	info := whoami{User: sess.Store.State().User}
	if cookie, ok := session.FindSessionCookie(sess.API.Cookies()); ok {
		if exp, ok := session.CookieExpiry(cookie.Value); ok {
			info.SessionExpires = &exp
		}
	}

	if output != FormatTable {
		return writeStructured(app.out, output, info)
	}

	user := info.User
	rows := [][]string{
		{"ID", user.ID},
		{"Name", user.DisplayName()},
		{"Email", user.Email},
		{"Role", string(user.Role)},
		{"Tenant", user.TenantID},
		{"Verified", fmt.Sprintf("%t", user.Verified)},
	}
	if user.LastLogin != nil {
		rows = append(rows, []string{"Last login", *user.LastLogin})
	}
	if info.SessionExpires != nil {
		rows = append(rows, []string{"Session expires", info.SessionExpires.Local().Format(time.RFC1123)})
	}
	return writeTable(app.out, []string{"FIELD", "VALUE"}, rows)
}

// NewRefreshCmd creates the refresh command
func NewRefreshCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Extend the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context(), app)
		},
	}
}

func runRefresh(ctx context.Context, app *App) error {
	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := requireAuth(ctx, sess); err != nil {
		return err
	}

	resp, err := sess.API.RefreshSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	msg := resp.Message
	if msg == "" {
		msg = "Session refreshed"
	}
	app.printf("✓ %s\n", msg)

	if cookie, ok := session.FindSessionCookie(sess.API.Cookies()); ok {
		if exp, ok := session.CookieExpiry(cookie.Value); ok {
			app.printf("  Expires: %s\n", exp.Local().Format(time.RFC1123))
		}
	}
	return nil
}

func printUserSummary(app *App, user *models.AuthUser) {
	if user == nil {
		return
	}
	app.printf("  User: %s (%s)\n", user.DisplayName(), user.Email)
	if user.Role != "" {
		app.printf("  Role: %s\n", user.Role)
	}
	if user.TenantID != "" {
		app.printf("  Tenant: %s\n", user.TenantID)
	}
}
