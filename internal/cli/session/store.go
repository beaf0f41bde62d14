package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpa-platform/hpactl/internal/cli/client"
	"github.com/hpa-platform/hpactl/internal/cli/storage"
	"github.com/hpa-platform/hpactl/internal/models"
)

// Messages recorded in State.Error when the backend gives none
const (
	msgInitFailed           = "Failed to initialize authentication"
	msgLoginFailed          = "Login failed. Please check your credentials."
	msgRegisterFailed       = "Registration failed. Please try again."
	msgResetPasswordFailed  = "Failed to send reset password email."
	msgUpdatePasswordFailed = "Failed to update password."
)

// Transport is the part of the API client the store drives
type Transport interface {
	Login(ctx context.Context, req client.LoginRequest) (*client.AuthResponse, error)
	Register(ctx context.Context, req client.RegisterRequest) (*client.AuthResponse, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*models.AuthUser, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

// Credentials holds whatever proves the session to the backend between runs,
// such as a persistent cookie jar
type Credentials interface {
	Clear()
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithScheduler replaces the cron-backed refresh scheduler
func WithScheduler(scheduler Scheduler) Option {
	return func(s *Store) {
		s.scheduler = scheduler
	}
}

// WithCredentials lets the store discard the saved session credential when the
// session ends locally
func WithCredentials(credentials Credentials) Option {
	return func(s *Store) {
		s.credentials = credentials
	}
}

// WithRefreshInterval overrides how often the user is re-fetched
func WithRefreshInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.refreshInterval = interval
		}
	}
}

type subscriber struct {
	id int
	fn func(State)
}

// Store owns the session state of one application instance.
//
// Auth actions are serialized: a second Login issued while one is in flight
// waits for the first to finish. The periodic refresh skips its tick when an
// action is running. Login, Register, ResetPassword and UpdatePassword return
// their error to the caller as well as recording it; Initialize, Logout and
// RefreshUser never fail.
type Store struct {
	transport       Transport
	prefs           *storage.Prefs
	credentials     Credentials
	logger          zerolog.Logger
	scheduler       Scheduler
	refreshInterval time.Duration

	actionMu sync.Mutex

	mu          sync.Mutex
	state       State
	subscribers []subscriber
	nextID      int
	armed       bool
	initialized bool
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a store in the initializing state
func New(transport Transport, prefs *storage.Prefs, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		transport:       transport,
		prefs:           prefs,
		logger:          zerolog.Nop(),
		refreshInterval: DefaultRefreshInterval,
		state:           State{IsLoading: true},
		ctx:             ctx,
		cancel:          cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.scheduler == nil {
		s.scheduler = NewCronScheduler(s.logger)
	}

	return s
}

// State returns a snapshot of the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the derived lifecycle stage
func (s *Store) Status() Status {
	return s.State().Status()
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change and must not block.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Initialize checks for an existing backend session. It only runs once per
// store; later calls return immediately.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return
	}
	s.initialized = true
	s.mu.Unlock()

	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	defer s.finish()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Error initializing authentication")
			s.update(func(st *State) { st.Error = msgInitFailed })
		}
	}()

	s.begin()

	user, err := s.transport.CurrentUser(ctx)
	if err != nil {
		var apiErr *client.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized:
			s.logger.Debug().Msg("No active session")
			s.clearCredentials()
		case errors.As(err, &apiErr):
			s.logger.Error().Err(err).Int("status", apiErr.Status).Msg("Unexpected error verifying session")
		default:
			s.logger.Error().Err(err).Msg("Non-API error verifying session")
		}

		s.update(func(st *State) {
			st.IsAuthenticated = false
			st.User = nil
		})
		s.prefs.Clear()
		return
	}

	s.update(func(st *State) {
		st.User = user
		st.IsAuthenticated = true
	})

	if s.prefs.RememberMe() {
		s.prefs.SaveUser(user)
	}
}

// Login signs in with form's credentials
func (s *Store) Login(ctx context.Context, form LoginForm) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.begin()
	defer s.finish()

	resp, err := s.transport.Login(ctx, client.LoginRequest{
		Email:    form.Email,
		Password: form.Password,
	})
	if err == nil && resp.MergedUser() == nil {
		err = &client.APIError{Message: "login response has no user", Kind: client.KindUnexpected}
	}
	if err != nil {
		s.fail(err, msgLoginFailed, "Login error")
		return err
	}

	user := resp.MergedUser()
	s.update(func(st *State) {
		st.User = user
		st.IsAuthenticated = true
	})

	if form.RememberMe {
		s.prefs.SaveUser(user)
		s.prefs.SetRememberMe(true)
	} else {
		s.prefs.SetRememberMe(false)
		s.prefs.Remove(storage.KeyUser)
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User logged in")
	return nil
}

// Register creates an account and signs it in. Registered users are always
// remembered.
func (s *Store) Register(ctx context.Context, form RegisterForm) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.begin()
	defer s.finish()

	resp, err := s.transport.Register(ctx, client.RegisterRequest{
		Email:      form.Email,
		Password:   form.Password,
		FirstName:  form.FirstName,
		LastName:   form.LastName,
		TenantName: form.TenantName,
	})
	if err == nil && resp.MergedUser() == nil {
		err = &client.APIError{Message: "register response has no user", Kind: client.KindUnexpected}
	}
	if err != nil {
		s.fail(err, msgRegisterFailed, "Registration error")
		return err
	}

	user := resp.MergedUser()
	s.update(func(st *State) {
		st.User = user
		st.IsAuthenticated = true
	})

	s.prefs.SaveUser(user)
	s.prefs.SetRememberMe(true)

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")
	return nil
}

// Logout ends the session. It always succeeds locally, even when the
// backend cannot be reached.
func (s *Store) Logout(ctx context.Context) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.logout(ctx, true)
}

// logout requires actionMu. callAPI is false when the backend already
// rejected the session.
func (s *Store) logout(ctx context.Context, callAPI bool) {
	defer s.guard("logout")

	if s.State().Status() == StatusUnauthenticated {
		s.prefs.Clear()
		s.clearCredentials()
		s.ClearError()
		return
	}

	s.update(func(st *State) { st.IsLoading = true })
	defer s.finish()

	if callAPI {
		if err := s.transport.Logout(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Logout API call failed")
		}
	}

	s.update(func(st *State) {
		st.User = nil
		st.IsAuthenticated = false
		st.Error = ""
	})
	s.prefs.Clear()
	s.clearCredentials()
}

// clearCredentials drops the saved credential so the next run starts signed out
func (s *Store) clearCredentials() {
	if s.credentials != nil {
		s.credentials.Clear()
	}
}

// ResetPassword asks the backend to email a password reset link
func (s *Store) ResetPassword(ctx context.Context, email string) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.begin()
	defer s.finish()

	if err := s.transport.ForgotPassword(ctx, email); err != nil {
		s.fail(err, msgResetPasswordFailed, "Reset password error")
		return err
	}
	return nil
}

// UpdatePassword sets a new password using a reset token
func (s *Store) UpdatePassword(ctx context.Context, form PasswordResetForm) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.begin()
	defer s.finish()

	if err := s.transport.ResetPassword(ctx, form.Token, form.Password); err != nil {
		s.fail(err, msgUpdatePasswordFailed, "Update password error")
		return err
	}
	return nil
}

// RefreshUser re-fetches the current user while authenticated. A 401 signs
// the user out locally; any other failure is logged and ignored.
func (s *Store) RefreshUser(ctx context.Context) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.refresh(ctx)
}

// refreshTick is the scheduled job
func (s *Store) refreshTick() {
	if !s.actionMu.TryLock() {
		s.logger.Debug().Msg("Auth action in flight, skipping session refresh")
		return
	}
	defer s.actionMu.Unlock()

	s.refresh(s.ctx)
}

func (s *Store) refresh(ctx context.Context) {
	defer s.guard("refresh user")

	if !s.State().IsAuthenticated || s.isClosed() {
		return
	}

	user, err := s.transport.CurrentUser(ctx)
	if s.isClosed() {
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int("status", client.StatusOf(err)).Msg("Refresh user error")
		if client.IsUnauthorized(err) {
			s.logout(ctx, false)
		}
		return
	}

	s.update(func(st *State) { st.User = user })

	if s.prefs.RememberMe() {
		s.prefs.SaveUser(user)
	}
}

// ClearError drops the recorded error
func (s *Store) ClearError() {
	if s.State().Error == "" {
		return
	}
	s.update(func(st *State) { st.Error = "" })
}

// Close disarms the refresh job and abandons background work. Results of
// refreshes still in flight are dropped and subscribers are no longer called.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	if s.armed {
		s.scheduler.Stop()
		s.armed = false
	}
	s.subscribers = nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) begin() {
	s.update(func(st *State) {
		st.IsLoading = true
		st.Error = ""
	})
}

func (s *Store) finish() {
	s.update(func(st *State) {
		st.IsLoading = false
		st.Resolved = true
	})
}

// fail records err's message (or fallback) as the visible error
func (s *Store) fail(err error, fallback, logMsg string) {
	s.logger.Error().Err(err).Msg(logMsg)

	msg := fallback
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	s.update(func(st *State) { st.Error = msg })
}

func (s *Store) guard(op string) {
	if r := recover(); r != nil {
		s.logger.Error().Interface("panic", r).Str("op", op).Msg("Recovered from panic")
	}
}

// update applies mutate under the lock, keeps the refresh job in step with
// the authentication flag and then notifies subscribers
func (s *Store) update(mutate func(*State)) {
	s.mu.Lock()
	mutate(&s.state)
	snapshot := s.state
	s.syncRefresh()
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		s.notify(sub, snapshot)
	}
}

func (s *Store) notify(sub subscriber, snapshot State) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Session subscriber panicked")
		}
	}()
	sub.fn(snapshot)
}

// syncRefresh requires s.mu
func (s *Store) syncRefresh() {
	want := s.state.IsAuthenticated && !s.closed

	switch {
	case want && !s.armed:
		if err := s.scheduler.Start(s.refreshInterval, s.refreshTick); err != nil {
			s.logger.Error().Err(err).Msg("Failed to schedule session refresh")
			return
		}
		s.armed = true
	case !want && s.armed:
		s.scheduler.Stop()
		s.armed = false
	}
}
