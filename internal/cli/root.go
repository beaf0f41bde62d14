package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hpa-platform/hpactl/internal/cli/commands"
	"github.com/hpa-platform/hpactl/internal/cli/userconfig"
	"github.com/hpa-platform/hpactl/internal/config"
	"github.com/hpa-platform/hpactl/internal/logger"
)

var version = "dev" // Will be set during build

// rootFlags override the loaded configuration when set
type rootFlags struct {
	apiURL      string
	storage     string
	storagePath string
	logLevel    string
}

// NewRootCmd builds the command tree around one App
func NewRootCmd(opts ...commands.Option) *cobra.Command {
	app := commands.NewApp(opts...)
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "hpactl",
		Short: "hpactl - HPA fleet console from the command line",
		Long: `hpactl signs you in to the HPA fleet-management console and lets you
inspect clusters, agents, certificates and tokens from a terminal.

The session is a backend cookie; hpactl keeps it (and, with --remember, your
profile) in the OS keyring unless another storage backend is configured.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}

			logger.Init(cfg.Logging.Level, cfg.Logging.Format)
			app.Configure(cfg, logger.GetLogger())
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "API base URL (or set HPA_API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flags.storage, "storage", "", "Storage backend: keyring, sqlite or memory (or set HPA_STORAGE)")
	rootCmd.PersistentFlags().StringVar(&flags.storagePath, "storage-path", "", "SQLite file for --storage=sqlite (or set HPA_STORAGE_PATH)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (or set LOG_LEVEL)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hpactl version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewLoginCmd(app))
	rootCmd.AddCommand(commands.NewRegisterCmd(app))
	rootCmd.AddCommand(commands.NewLogoutCmd(app))
	rootCmd.AddCommand(commands.NewWhoamiCmd(app))
	rootCmd.AddCommand(commands.NewRefreshCmd(app))
	rootCmd.AddCommand(commands.NewPasswordCmd(app))
	rootCmd.AddCommand(commands.NewVerifyEmailCmd(app))
	rootCmd.AddCommand(commands.NewWatchCmd(app))
	rootCmd.AddCommand(commands.NewGetCmd(app))
	rootCmd.AddCommand(commands.NewCertificatesCmd(app))
	rootCmd.AddCommand(commands.NewUseCmd(app))

	return rootCmd
}

func (f rootFlags) apply(cfg *config.Config) error {
	if f.apiURL != "" {
		cfg.API.BaseURL = f.apiURL
	}
	if f.storage != "" {
		cfg.Storage.Backend = f.storage
	}
	if f.storagePath != "" {
		cfg.Storage.Path = f.storagePath
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	if cfg.Storage.Backend == "sqlite" && cfg.Storage.Path == "" {
		profile, err := userconfig.Load()
		if err != nil {
			return err
		}
		cfg.Storage.Path = profile.StateFile()
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
