package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hpa-platform/hpactl/internal/cli/session"
)

// ErrSessionEnded is returned by watch when the backend drops the session
var ErrSessionEnded = errors.New("session ended. Please run 'hpactl login' to sign in again")

// NewWatchCmd creates the watch command
func NewWatchCmd(app *App) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive and report changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, app, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval (default from HPA_REFRESH_INTERVAL)")

	return cmd
}

func runWatch(ctx context.Context, app *App, interval time.Duration) error {
	if interval > 0 {
		app.cfg.Session.RefreshInterval = interval
	}

	sess, err := app.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	changes := make(chan session.State, 16)
	unsubscribe := sess.Store.Subscribe(func(st session.State) {
		select {
		case changes <- st:
		default:
		}
	})
	defer unsubscribe()

	if err := requireAuth(ctx, sess); err != nil {
		return err
	}

	last := sess.Store.State()
	app.printf("Watching session of %s (refresh every %s). Press Ctrl+C to stop.\n",
		last.User.Email, app.cfg.Session.RefreshInterval)

	for {
		// A change may land between requireAuth and the first receive
		current := sess.Store.State()
		if current.Status() == session.StatusUnauthenticated {
			app.printf("%s  session ended\n", time.Now().Format(time.RFC3339))
			return ErrSessionEnded
		}
		if current.User != last.User && current.User != nil {
			app.printf("%s  user refreshed: %s (%s)\n", time.Now().Format(time.RFC3339), current.User.DisplayName(), current.User.Role)
			last = current
		}

		select {
		case <-ctx.Done():
			app.println("Stopped watching.")
			return nil
		case <-changes:
		}
	}
}
