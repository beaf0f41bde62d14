package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/hpa-platform/hpactl/internal/cli/client"
	"github.com/hpa-platform/hpactl/internal/cli/session"
	"github.com/hpa-platform/hpactl/internal/cli/storage"
	"github.com/hpa-platform/hpactl/internal/config"
)

// ErrNotAuthenticated is returned by commands that need a live session
var ErrNotAuthenticated = errors.New("not authenticated. Please run 'hpactl login' first")

// App carries what every command needs. The root command fills in the
// configuration before any subcommand runs.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	out    io.Writer
	errOut io.Writer
	in     io.Reader

	backend     storage.Backend
	scheduler   session.Scheduler
	interactive func() bool
}

// Option configures an App
type Option func(*App)

// WithOutput redirects command output
func WithOutput(out io.Writer) Option {
	return func(a *App) { a.out = out }
}

// WithErrorOutput redirects diagnostics
func WithErrorOutput(w io.Writer) Option {
	return func(a *App) { a.errOut = w }
}

// WithInput replaces stdin; the app is then never interactive
func WithInput(in io.Reader) Option {
	return func(a *App) {
		a.in = in
		a.interactive = func() bool { return false }
	}
}

// WithStorage replaces the configured storage backend
func WithStorage(backend storage.Backend) Option {
	return func(a *App) { a.backend = backend }
}

// WithScheduler replaces the session refresh scheduler
func WithScheduler(scheduler session.Scheduler) Option {
	return func(a *App) { a.scheduler = scheduler }
}

// NewApp creates an App writing to the process's standard streams
func NewApp(opts ...Option) *App {
	a := &App{
		logger: zerolog.Nop(),
		out:    os.Stdout,
		errOut: os.Stderr,
		in:     os.Stdin,
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Configure sets the loaded configuration and logger
func (a *App) Configure(cfg *config.Config, logger zerolog.Logger) {
	a.cfg = cfg
	a.logger = logger
}

// Config returns the active configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// Session bundles the API client and session store of one command run
type Session struct {
	API   *client.Client
	Store *session.Store
	Prefs *storage.Prefs

	backend storage.Backend
	owned   bool
}

// Close stops the store and releases the storage backend
func (s *Session) Close() {
	s.Store.Close()
	if !s.owned {
		return
	}
	if closer, ok := s.backend.(storage.Closer); ok {
		_ = closer.Close()
	}
}

// openSession wires storage, the cookie jar, the API client and the store
func (a *App) openSession() (*Session, error) {
	if a.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	backend, owned := a.backend, false
	if backend == nil {
		opened, err := storage.Open(a.cfg.Storage.Backend, a.cfg.Storage.Path, a.cfg.API.BaseURL)
		if err != nil {
			// Persistence is best effort; the session still works for this run
			a.logger.Warn().Err(err).Str("backend", a.cfg.Storage.Backend).Msg("Storage unavailable, session will not be remembered")
		}
		backend, owned = opened, true
	}
	prefs := storage.NewPrefs(backend, a.logger)

	jar, err := client.NewPersistentJar(a.cfg.API.BaseURL, prefs)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL %q: %w", a.cfg.API.BaseURL, err)
	}

	api := client.New(a.cfg.API.BaseURL,
		client.WithTimeout(a.cfg.API.Timeout),
		client.WithCookieJar(jar),
		client.WithLogger(a.logger),
	)

	opts := []session.Option{
		session.WithLogger(a.logger),
		session.WithRefreshInterval(a.cfg.Session.RefreshInterval),
		session.WithCredentials(jar),
	}
	if a.scheduler != nil {
		opts = append(opts, session.WithScheduler(a.scheduler))
	}

	return &Session{
		API:     api,
		Store:   session.New(api, prefs, opts...),
		Prefs:   prefs,
		backend: backend,
		owned:   owned,
	}, nil
}

// requireAuth resolves the session and fails unless it is authenticated
func requireAuth(ctx context.Context, sess *Session) error {
	sess.Store.Initialize(ctx)
	if sess.Store.Status() != session.StatusAuthenticated {
		return ErrNotAuthenticated
	}
	return nil
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}
