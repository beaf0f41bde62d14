package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hpa-platform/hpactl/internal/cli/userconfig"
)

// NewUseCmd creates the use command
func NewUseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "use <api-base-url>",
		Short: "Set the default API base URL",
		Long: `Set the default API base URL, e.g. https://console.example.com/api.

HPA_API_BASE_URL and --api-url still take precedence.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUse(app, args[0])
		},
	}
}

func runUse(app *App, raw string) error {
	baseURL := strings.TrimRight(strings.TrimSpace(raw), "/")

	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid API base URL %q (expected http(s)://host/path)", raw)
	}

	profile, err := userconfig.Load()
	if err != nil {
		return err
	}
	profile.APIBaseURL = baseURL
	if err := profile.Save(); err != nil {
		return fmt.Errorf("failed to save API base URL: %w", err)
	}

	app.printf("✓ Using %s\n", baseURL)
	return nil
}
