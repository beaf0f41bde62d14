package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewCertificatesCmd groups the certificate actions
func NewCertificatesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "certificates",
		Aliases: []string{"certs"},
		Short:   "Manage agent certificates",
	}

	cmd.AddCommand(newCertificatesDownloadCmd(app))
	cmd.AddCommand(newCertificatesRevokeCmd(app))

	return cmd
}

func newCertificatesDownloadCmd(app *App) *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download a certificate as PEM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCertificatesDownload(cmd.Context(), app, args[0], outFile)
		},
	}

	cmd.Flags().StringVar(&outFile, "out", "", "Destination file (default <id>.pem)")

	return cmd
}

func runCertificatesDownload(ctx context.Context, app *App, id, outFile string) error {
	if outFile == "" {
		outFile = filepath.Base(id) + ".pem"
	}

	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := requireAuth(ctx, sess); err != nil {
		return err
	}

	data, err := sess.API.DownloadCertificate(ctx, id, outFile)
	if err != nil {
		return fmt.Errorf("failed to download certificate %s: %w", id, err)
	}

	app.printf("✓ Saved %s (%d bytes)\n", outFile, len(data))
	return nil
}

func newCertificatesRevokeCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCertificatesRevoke(cmd.Context(), app, args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runCertificatesRevoke(ctx context.Context, app *App, id string, yes bool) error {
	if !yes {
		ok, err := app.confirm(fmt.Sprintf("Revoke certificate %s", id))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("revocation not confirmed (use --yes in non-interactive mode)")
		}
	}

	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := requireAuth(ctx, sess); err != nil {
		return err
	}

	if err := sess.API.RevokeCertificate(ctx, id); err != nil {
		return fmt.Errorf("failed to revoke certificate %s: %w", id, err)
	}

	app.printf("✓ Certificate %s revoked\n", id)
	return nil
}
