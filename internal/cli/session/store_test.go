package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpa-platform/hpactl/internal/cli/client"
	"github.com/hpa-platform/hpactl/internal/cli/storage"
	"github.com/hpa-platform/hpactl/internal/models"
)

type fakeTransport struct {
	mu    sync.Mutex
	calls map[string]int

	login       func(ctx context.Context, req client.LoginRequest) (*client.AuthResponse, error)
	register    func(ctx context.Context, req client.RegisterRequest) (*client.AuthResponse, error)
	logout      func(ctx context.Context) error
	currentUser func(ctx context.Context) (*models.AuthUser, error)
	forgot      func(ctx context.Context, email string) error
	reset       func(ctx context.Context, token, password string) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: make(map[string]int)}
}

func (f *fakeTransport) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeTransport) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeTransport) Login(ctx context.Context, req client.LoginRequest) (*client.AuthResponse, error) {
	f.record("login")
	if f.login != nil {
		return f.login(ctx, req)
	}
	return &client.AuthResponse{User: testUser()}, nil
}

func (f *fakeTransport) Register(ctx context.Context, req client.RegisterRequest) (*client.AuthResponse, error) {
	f.record("register")
	if f.register != nil {
		return f.register(ctx, req)
	}
	return &client.AuthResponse{User: testUser()}, nil
}

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.record("logout")
	if f.logout != nil {
		return f.logout(ctx)
	}
	return nil
}

func (f *fakeTransport) CurrentUser(ctx context.Context) (*models.AuthUser, error) {
	f.record("me")
	if f.currentUser != nil {
		return f.currentUser(ctx)
	}
	return testUser(), nil
}

func (f *fakeTransport) ForgotPassword(ctx context.Context, email string) error {
	f.record("forgot")
	if f.forgot != nil {
		return f.forgot(ctx, email)
	}
	return nil
}

func (f *fakeTransport) ResetPassword(ctx context.Context, token, password string) error {
	f.record("reset")
	if f.reset != nil {
		return f.reset(ctx, token, password)
	}
	return nil
}

// fakeScheduler records arming and lets tests fire the job by hand
type fakeScheduler struct {
	mu       sync.Mutex
	job      func()
	interval time.Duration
	starts   int
	stops    int
}

func (f *fakeScheduler) Start(interval time.Duration, job func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job != nil {
		return nil
	}
	f.job = job
	f.interval = interval
	f.starts++
	return nil
}

func (f *fakeScheduler) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job == nil {
		return
	}
	f.job = nil
	f.stops++
}

func (f *fakeScheduler) armed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.job != nil
}

func (f *fakeScheduler) fire() {
	f.mu.Lock()
	job := f.job
	f.mu.Unlock()
	if job != nil {
		job()
	}
}

func testUser() *models.AuthUser {
	return &models.AuthUser{
		ID:        "u1",
		Email:     "a@b.co",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      models.RoleOperator,
		Verified:  true,
		CreatedAt: "2024-01-01T00:00:00Z",
		TenantID:  "t1",
	}
}

func unauthorized(msg string) error {
	return &client.APIError{Message: msg, Status: http.StatusUnauthorized, Kind: client.KindHTTP}
}

func newTestStore(t *testing.T, transport *fakeTransport) (*Store, *fakeScheduler, *storage.Prefs) {
	t.Helper()
	sched := &fakeScheduler{}
	prefs := storage.NewPrefs(storage.NewMemory(), zerolog.Nop())
	store := New(transport, prefs, WithScheduler(sched), WithLogger(zerolog.Nop()))
	t.Cleanup(store.Close)
	return store, sched, prefs
}

func TestNew_StartsInitializing(t *testing.T) {
	store, sched, _ := newTestStore(t, newFakeTransport())

	st := store.State()
	assert.Equal(t, StatusInitializing, st.Status())
	assert.True(t, st.IsLoading)
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.False(t, sched.armed())
}

func TestInitialize_ExistingSession(t *testing.T) {
	transport := newFakeTransport()
	store, sched, prefs := newTestStore(t, transport)

	store.Initialize(context.Background())

	st := store.State()
	assert.Equal(t, StatusAuthenticated, st.Status())
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.Error)
	assert.Equal(t, "u1", st.User.ID)
	assert.True(t, sched.armed())
	assert.Equal(t, DefaultRefreshInterval, sched.interval)

	// Not remembered, so nothing is cached
	_, ok := prefs.Get(storage.KeyUser)
	assert.False(t, ok)
}

func TestInitialize_RefreshesRememberedUser(t *testing.T) {
	transport := newFakeTransport()
	store, _, prefs := newTestStore(t, transport)
	prefs.SetRememberMe(true)
	prefs.Set(storage.KeyUser, `{"id":"stale"}`)

	store.Initialize(context.Background())

	var cached models.AuthUser
	require.True(t, prefs.LoadUser(&cached))
	assert.Equal(t, "u1", cached.ID)
}

func TestInitialize_NoSession(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "unauthorized", err: unauthorized("Not authenticated")},
		{name: "server error", err: &client.APIError{Message: "boom", Status: 500, Kind: client.KindHTTP}},
		{name: "network", err: &client.APIError{Message: "No response from server. Please check your connection.", Kind: client.KindNetwork}},
		{name: "plain error", err: errors.New("something else")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			transport.currentUser = func(context.Context) (*models.AuthUser, error) { return nil, tt.err }
			store, sched, prefs := newTestStore(t, transport)
			prefs.SetRememberMe(true)
			prefs.SaveUser(testUser())
			prefs.Set("unrelated", "kept")

			store.Initialize(context.Background())

			st := store.State()
			assert.Equal(t, StatusUnauthenticated, st.Status())
			assert.False(t, st.IsLoading)
			assert.Empty(t, st.Error)
			assert.False(t, sched.armed())

			_, ok := prefs.Get(storage.KeyRememberMe)
			assert.False(t, ok)
			_, ok = prefs.Get(storage.KeyUser)
			assert.False(t, ok)
			value, ok := prefs.Get("unrelated")
			assert.True(t, ok)
			assert.Equal(t, "kept", value)
		})
	}
}

func TestInitialize_RunsOnce(t *testing.T) {
	transport := newFakeTransport()
	store, _, _ := newTestStore(t, transport)

	store.Initialize(context.Background())
	store.Initialize(context.Background())

	assert.Equal(t, 1, transport.count("me"))
}

func TestInitialize_RecoversFromPanic(t *testing.T) {
	transport := newFakeTransport()
	transport.currentUser = func(context.Context) (*models.AuthUser, error) { panic("kaboom") }
	store, _, _ := newTestStore(t, transport)

	require.NotPanics(t, func() { store.Initialize(context.Background()) })

	st := store.State()
	assert.Equal(t, "Failed to initialize authentication", st.Error)
	assert.False(t, st.IsLoading)
	assert.Equal(t, StatusUnauthenticated, st.Status())
}

func TestLogin_MergesTenantAndRole(t *testing.T) {
	transport := newFakeTransport()
	transport.login = func(_ context.Context, req client.LoginRequest) (*client.AuthResponse, error) {
		assert.Equal(t, "a@b.co", req.Email)
		assert.Equal(t, "Secret123", req.Password)
		return &client.AuthResponse{
			User:     &models.AuthUser{ID: "u1", Email: "a@b.co", CreatedAt: "2024-01-01T00:00:00Z"},
			TenantID: "t1",
			Role:     models.RoleAdmin,
		}, nil
	}
	store, sched, prefs := newTestStore(t, transport)

	err := store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "Secret123", RememberMe: true})
	require.NoError(t, err)

	st := store.State()
	assert.Equal(t, StatusAuthenticated, st.Status())
	assert.Equal(t, "t1", st.User.TenantID)
	assert.Equal(t, models.RoleAdmin, st.User.Role)
	assert.False(t, st.IsLoading)
	assert.True(t, sched.armed())

	assert.True(t, prefs.RememberMe())
	var cached models.AuthUser
	require.True(t, prefs.LoadUser(&cached))
	assert.Equal(t, "t1", cached.TenantID)
	assert.Equal(t, models.RoleAdmin, cached.Role)
}

func TestLogin_KeepsNestedTenantAndRole(t *testing.T) {
	transport := newFakeTransport()
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) {
		return &client.AuthResponse{User: testUser(), TenantID: "other", Role: models.RoleAdmin}, nil
	}
	store, _, _ := newTestStore(t, transport)

	require.NoError(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x"}))

	st := store.State()
	assert.Equal(t, "t1", st.User.TenantID)
	assert.Equal(t, models.RoleOperator, st.User.Role)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	transport := newFakeTransport()
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) {
		return nil, unauthorized("Invalid credentials")
	}
	store, sched, _ := newTestStore(t, transport)
	store.Initialize(context.Background())

	err := store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, client.IsUnauthorized(err))

	st := store.State()
	assert.Equal(t, "Invalid credentials", st.Error)
	assert.False(t, st.IsLoading)
	// The earlier session is untouched by a failed login
	assert.True(t, st.IsAuthenticated)
	assert.True(t, sched.armed())
}

func TestLogin_FailureFromUnresolved(t *testing.T) {
	transport := newFakeTransport()
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) {
		return nil, unauthorized("Invalid credentials")
	}
	store, sched, _ := newTestStore(t, transport)

	err := store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "wrong"})
	require.Error(t, err)

	st := store.State()
	assert.Equal(t, StatusUnauthenticated, st.Status())
	assert.Equal(t, "Invalid credentials", st.Error)
	assert.False(t, sched.armed())
}

func TestLogin_FallbackMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "api error without message", err: &client.APIError{Status: 500, Kind: client.KindHTTP}},
		{name: "plain error", err: errors.New("dial tcp: refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) { return nil, tt.err }
			store, _, _ := newTestStore(t, transport)

			err := store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x"})
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, "Login failed. Please check your credentials.", store.State().Error)
		})
	}
}

func TestLogin_ResponseWithoutUser(t *testing.T) {
	transport := newFakeTransport()
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) {
		return &client.AuthResponse{Message: "ok"}, nil
	}
	store, _, _ := newTestStore(t, transport)

	err := store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x"})
	require.Error(t, err)

	st := store.State()
	assert.False(t, st.IsAuthenticated)
	assert.NotEmpty(t, st.Error)
}

func TestLogin_WithoutRememberMeDropsCachedUser(t *testing.T) {
	transport := newFakeTransport()
	store, _, prefs := newTestStore(t, transport)
	prefs.SetRememberMe(true)
	prefs.Set(storage.KeyUser, `{"id":"previous"}`)

	require.NoError(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x"}))

	value, ok := prefs.Get(storage.KeyRememberMe)
	require.True(t, ok)
	assert.Equal(t, "false", value)
	_, ok = prefs.Get(storage.KeyUser)
	assert.False(t, ok)
}

func TestLogin_ClearsPreviousError(t *testing.T) {
	transport := newFakeTransport()
	fail := true
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) {
		if fail {
			return nil, unauthorized("Invalid credentials")
		}
		return &client.AuthResponse{User: testUser()}, nil
	}
	store, _, _ := newTestStore(t, transport)

	require.Error(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x"}))
	fail = false
	require.NoError(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "y"}))

	assert.Empty(t, store.State().Error)
}

func TestRegister_AlwaysRemembers(t *testing.T) {
	transport := newFakeTransport()
	transport.register = func(_ context.Context, req client.RegisterRequest) (*client.AuthResponse, error) {
		assert.Equal(t, "Ada", req.FirstName)
		assert.Equal(t, "Lovelace", req.LastName)
		assert.Equal(t, "Acme", req.TenantName)
		return &client.AuthResponse{
			User:     &models.AuthUser{ID: "u2", Email: req.Email},
			TenantID: "t9",
			Role:     models.RoleAdmin,
		}, nil
	}
	store, sched, prefs := newTestStore(t, transport)

	err := store.Register(context.Background(), RegisterForm{
		Email:      "new@b.co",
		Password:   "Secret123",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		TenantName: "Acme",
	})
	require.NoError(t, err)

	st := store.State()
	assert.Equal(t, StatusAuthenticated, st.Status())
	assert.Equal(t, "t9", st.User.TenantID)
	assert.True(t, sched.armed())
	assert.True(t, prefs.RememberMe())

	var cached models.AuthUser
	require.True(t, prefs.LoadUser(&cached))
	assert.Equal(t, "u2", cached.ID)
}

func TestRegister_Failure(t *testing.T) {
	transport := newFakeTransport()
	transport.register = func(context.Context, client.RegisterRequest) (*client.AuthResponse, error) {
		return nil, &client.APIError{Message: "Email already registered", Status: 409, Kind: client.KindHTTP}
	}
	store, _, prefs := newTestStore(t, transport)

	err := store.Register(context.Background(), RegisterForm{Email: "a@b.co", Password: "Secret123"})
	require.Error(t, err)

	st := store.State()
	assert.Equal(t, "Email already registered", st.Error)
	assert.False(t, st.IsLoading)
	assert.False(t, prefs.RememberMe())
}

func TestRegister_FallbackMessage(t *testing.T) {
	transport := newFakeTransport()
	transport.register = func(context.Context, client.RegisterRequest) (*client.AuthResponse, error) {
		return nil, errors.New("boom")
	}
	store, _, _ := newTestStore(t, transport)

	require.Error(t, store.Register(context.Background(), RegisterForm{}))
	assert.Equal(t, "Registration failed. Please try again.", store.State().Error)
}

func TestLogout_ClearsSessionAndPrefs(t *testing.T) {
	transport := newFakeTransport()
	store, sched, prefs := newTestStore(t, transport)
	require.NoError(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x", RememberMe: true}))
	prefs.Set("unrelated", "kept")

	store.Logout(context.Background())

	st := store.State()
	assert.Equal(t, StatusUnauthenticated, st.Status())
	assert.Nil(t, st.User)
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.Error)
	assert.False(t, sched.armed())
	assert.Equal(t, 1, sched.stops)

	_, ok := prefs.Get(storage.KeyUser)
	assert.False(t, ok)
	_, ok = prefs.Get(storage.KeyRememberMe)
	assert.False(t, ok)
	_, ok = prefs.Get("unrelated")
	assert.True(t, ok)
}

func TestLogout_TwiceCallsBackendOnce(t *testing.T) {
	transport := newFakeTransport()
	store, _, _ := newTestStore(t, transport)
	store.Initialize(context.Background())

	store.Logout(context.Background())
	store.Logout(context.Background())

	assert.Equal(t, 1, transport.count("logout"))
	assert.Equal(t, StatusUnauthenticated, store.Status())
}

func TestLogout_BackendFailureStillLogsOut(t *testing.T) {
	transport := newFakeTransport()
	transport.logout = func(context.Context) error {
		return &client.APIError{Message: "No response from server. Please check your connection.", Kind: client.KindNetwork}
	}
	store, _, _ := newTestStore(t, transport)
	store.Initialize(context.Background())

	store.Logout(context.Background())

	st := store.State()
	assert.Equal(t, StatusUnauthenticated, st.Status())
	assert.Empty(t, st.Error)
	assert.False(t, st.IsLoading)
}

func TestLogout_ClearsStaleError(t *testing.T) {
	transport := newFakeTransport()
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) {
		return nil, unauthorized("Invalid credentials")
	}
	store, _, _ := newTestStore(t, transport)
	require.Error(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x"}))

	store.Logout(context.Background())

	assert.Empty(t, store.State().Error)
	assert.Equal(t, 0, transport.count("logout"))
}

func TestRefreshUser_UpdatesUser(t *testing.T) {
	transport := newFakeTransport()
	store, _, prefs := newTestStore(t, transport)
	require.NoError(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x", RememberMe: true}))

	transport.currentUser = func(context.Context) (*models.AuthUser, error) {
		u := testUser()
		u.FirstName = "Grace"
		return u, nil
	}
	store.RefreshUser(context.Background())

	assert.Equal(t, "Grace", store.State().User.FirstName)
	var cached models.AuthUser
	require.True(t, prefs.LoadUser(&cached))
	assert.Equal(t, "Grace", cached.FirstName)
}

func TestRefreshUser_UnauthorizedLogsOutLocally(t *testing.T) {
	transport := newFakeTransport()
	store, sched, prefs := newTestStore(t, transport)
	require.NoError(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x", RememberMe: true}))

	transport.currentUser = func(context.Context) (*models.AuthUser, error) {
		return nil, unauthorized("Session expired")
	}
	sched.fire()

	st := store.State()
	assert.Equal(t, StatusUnauthenticated, st.Status())
	assert.Empty(t, st.Error)
	assert.False(t, st.IsLoading)
	assert.False(t, sched.armed())
	assert.Equal(t, 0, transport.count("logout"))
	_, ok := prefs.Get(storage.KeyUser)
	assert.False(t, ok)
}

type fakeCredentials struct {
	mu      sync.Mutex
	cleared int
}

func (f *fakeCredentials) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeCredentials) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

func newCredentialStore(t *testing.T, transport *fakeTransport) (*Store, *fakeScheduler, *fakeCredentials) {
	t.Helper()
	sched := &fakeScheduler{}
	creds := &fakeCredentials{}
	prefs := storage.NewPrefs(storage.NewMemory(), zerolog.Nop())
	store := New(transport, prefs, WithScheduler(sched), WithCredentials(creds))
	t.Cleanup(store.Close)
	return store, sched, creds
}

func TestCredentials_ClearedWhenSessionEnds(t *testing.T) {
	down := &client.APIError{Message: "No response from server. Please check your connection.", Kind: client.KindNetwork}

	tests := []struct {
		name string
		run  func(store *Store, transport *fakeTransport, sched *fakeScheduler)
		want int
	}{
		{
			name: "logout",
			run: func(store *Store, _ *fakeTransport, _ *fakeScheduler) {
				store.Initialize(context.Background())
				store.Logout(context.Background())
			},
			want: 1,
		},
		{
			name: "logout with backend down",
			run: func(store *Store, transport *fakeTransport, _ *fakeScheduler) {
				transport.logout = func(context.Context) error { return down }
				store.Initialize(context.Background())
				store.Logout(context.Background())
			},
			want: 1,
		},
		{
			name: "logout when already signed out",
			run: func(store *Store, transport *fakeTransport, _ *fakeScheduler) {
				transport.currentUser = func(context.Context) (*models.AuthUser, error) { return nil, down }
				store.Initialize(context.Background())
				store.Logout(context.Background())
			},
			want: 1,
		},
		{
			name: "initialize rejected",
			run: func(store *Store, transport *fakeTransport, _ *fakeScheduler) {
				transport.currentUser = func(context.Context) (*models.AuthUser, error) { return nil, unauthorized("Not authenticated") }
				store.Initialize(context.Background())
			},
			want: 1,
		},
		{
			name: "initialize unreachable",
			run: func(store *Store, transport *fakeTransport, _ *fakeScheduler) {
				transport.currentUser = func(context.Context) (*models.AuthUser, error) { return nil, down }
				store.Initialize(context.Background())
			},
			want: 0,
		},
		{
			name: "refresh rejected",
			run: func(store *Store, transport *fakeTransport, sched *fakeScheduler) {
				store.Initialize(context.Background())
				transport.currentUser = func(context.Context) (*models.AuthUser, error) { return nil, unauthorized("Session expired") }
				sched.fire()
			},
			want: 1,
		},
		{
			name: "refresh unreachable",
			run: func(store *Store, transport *fakeTransport, sched *fakeScheduler) {
				store.Initialize(context.Background())
				transport.currentUser = func(context.Context) (*models.AuthUser, error) { return nil, down }
				sched.fire()
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			store, sched, creds := newCredentialStore(t, transport)

			tt.run(store, transport, sched)

			assert.Equal(t, tt.want, creds.count())
		})
	}
}

func TestRefreshUser_OtherFailuresKeepSession(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "server error", err: &client.APIError{Message: "boom", Status: 500, Kind: client.KindHTTP}},
		{name: "forbidden", err: &client.APIError{Message: "nope", Status: 403, Kind: client.KindHTTP}},
		{name: "network", err: &client.APIError{Message: "offline", Kind: client.KindNetwork}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			store, sched, _ := newTestStore(t, transport)
			store.Initialize(context.Background())
			before := store.State()

			transport.currentUser = func(context.Context) (*models.AuthUser, error) { return nil, tt.err }
			store.RefreshUser(context.Background())

			assert.Equal(t, before, store.State())
			assert.True(t, sched.armed())
		})
	}
}

func TestRefreshUser_NoopWhenUnauthenticated(t *testing.T) {
	transport := newFakeTransport()
	store, _, _ := newTestStore(t, transport)

	store.RefreshUser(context.Background())

	assert.Equal(t, 0, transport.count("me"))
}

func TestRefreshTick_SkipsWhileActionInFlight(t *testing.T) {
	transport := newFakeTransport()
	store, sched, _ := newTestStore(t, transport)
	store.Initialize(context.Background())
	require.Equal(t, 1, transport.count("me"))

	entered := make(chan struct{})
	release := make(chan struct{})
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) {
		close(entered)
		<-release
		return &client.AuthResponse{User: testUser()}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x"})
	}()
	<-entered

	sched.fire()
	assert.Equal(t, 1, transport.count("me"))

	close(release)
	require.NoError(t, <-done)

	sched.fire()
	assert.Equal(t, 2, transport.count("me"))
}

func TestActions_AreSerialized(t *testing.T) {
	transport := newFakeTransport()
	var mu sync.Mutex
	active, maxActive := 0, 0
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return &client.AuthResponse{User: testUser()}, nil
	}
	store, _, _ := newTestStore(t, transport)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Equal(t, 5, transport.count("login"))
	assert.False(t, store.State().IsLoading)
}

func TestResetPassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		transport := newFakeTransport()
		transport.forgot = func(_ context.Context, email string) error {
			assert.Equal(t, "a@b.co", email)
			return nil
		}
		store, _, _ := newTestStore(t, transport)

		require.NoError(t, store.ResetPassword(context.Background(), "a@b.co"))
		assert.Empty(t, store.State().Error)
		assert.False(t, store.State().IsLoading)
	})

	t.Run("backend message", func(t *testing.T) {
		transport := newFakeTransport()
		transport.forgot = func(context.Context, string) error {
			return &client.APIError{Message: "Too many requests", Status: 429, Kind: client.KindHTTP}
		}
		store, _, _ := newTestStore(t, transport)

		require.Error(t, store.ResetPassword(context.Background(), "a@b.co"))
		assert.Equal(t, "Too many requests", store.State().Error)
	})

	t.Run("fallback", func(t *testing.T) {
		transport := newFakeTransport()
		transport.forgot = func(context.Context, string) error { return errors.New("boom") }
		store, _, _ := newTestStore(t, transport)

		require.Error(t, store.ResetPassword(context.Background(), "a@b.co"))
		assert.Equal(t, "Failed to send reset password email.", store.State().Error)
	})
}

func TestUpdatePassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		transport := newFakeTransport()
		transport.reset = func(_ context.Context, token, password string) error {
			assert.Equal(t, "tok", token)
			assert.Equal(t, "NewSecret1", password)
			return nil
		}
		store, _, _ := newTestStore(t, transport)

		err := store.UpdatePassword(context.Background(), PasswordResetForm{Token: "tok", Password: "NewSecret1", ConfirmPassword: "NewSecret1"})
		require.NoError(t, err)
	})

	t.Run("fallback", func(t *testing.T) {
		transport := newFakeTransport()
		transport.reset = func(context.Context, string, string) error {
			return &client.APIError{Status: 400, Kind: client.KindHTTP}
		}
		store, _, _ := newTestStore(t, transport)

		require.Error(t, store.UpdatePassword(context.Background(), PasswordResetForm{Token: "tok"}))
		assert.Equal(t, "Failed to update password.", store.State().Error)
	})
}

func TestLoadingNeverStuck(t *testing.T) {
	failing := errors.New("boom")
	transport := newFakeTransport()
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) { return nil, failing }
	transport.register = func(context.Context, client.RegisterRequest) (*client.AuthResponse, error) { return nil, failing }
	transport.logout = func(context.Context) error { return failing }
	transport.currentUser = func(context.Context) (*models.AuthUser, error) { return nil, failing }
	transport.forgot = func(context.Context, string) error { return failing }
	transport.reset = func(context.Context, string, string) error { return failing }

	store, _, _ := newTestStore(t, transport)
	ctx := context.Background()

	actions := []struct {
		name string
		run  func()
	}{
		{"initialize", func() { store.Initialize(ctx) }},
		{"login", func() { _ = store.Login(ctx, LoginForm{}) }},
		{"register", func() { _ = store.Register(ctx, RegisterForm{}) }},
		{"logout", func() { store.Logout(ctx) }},
		{"reset password", func() { _ = store.ResetPassword(ctx, "a@b.co") }},
		{"update password", func() { _ = store.UpdatePassword(ctx, PasswordResetForm{}) }},
		{"refresh", func() { store.RefreshUser(ctx) }},
	}

	for _, action := range actions {
		action.run()
		assert.False(t, store.State().IsLoading, action.name)
	}
}

func TestSubscribe(t *testing.T) {
	transport := newFakeTransport()
	store, _, _ := newTestStore(t, transport)

	var mu sync.Mutex
	var seen []State
	unsubscribe := store.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	})

	store.Initialize(context.Background())

	mu.Lock()
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	count := len(seen)
	mu.Unlock()
	assert.Equal(t, StatusAuthenticated, last.Status())
	assert.False(t, last.IsLoading)

	unsubscribe()
	unsubscribe()
	store.Logout(context.Background())

	mu.Lock()
	assert.Len(t, seen, count)
	mu.Unlock()
}

func TestSubscribe_PanickingSubscriberIsContained(t *testing.T) {
	transport := newFakeTransport()
	store, _, _ := newTestStore(t, transport)
	store.Subscribe(func(State) { panic("bad subscriber") })

	require.NotPanics(t, func() {
		require.NoError(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x"}))
	})
	assert.Equal(t, StatusAuthenticated, store.Status())
	assert.False(t, store.State().IsLoading)
}

func TestClearError(t *testing.T) {
	transport := newFakeTransport()
	transport.login = func(context.Context, client.LoginRequest) (*client.AuthResponse, error) {
		return nil, unauthorized("Invalid credentials")
	}
	store, _, _ := newTestStore(t, transport)
	require.Error(t, store.Login(context.Background(), LoginForm{}))

	calls := 0
	store.Subscribe(func(State) { calls++ })

	store.ClearError()
	store.ClearError()

	assert.Empty(t, store.State().Error)
	assert.Equal(t, 1, calls)
}

func TestClose_DisarmsAndDropsLateResults(t *testing.T) {
	transport := newFakeTransport()
	store, sched, _ := newTestStore(t, transport)
	store.Initialize(context.Background())
	require.True(t, sched.armed())

	entered := make(chan struct{})
	release := make(chan struct{})
	transport.currentUser = func(context.Context) (*models.AuthUser, error) {
		close(entered)
		<-release
		return nil, unauthorized("Session expired")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		store.RefreshUser(context.Background())
	}()
	<-entered

	notified := false
	store.Subscribe(func(State) { notified = true })

	store.Close()
	assert.False(t, sched.armed())

	close(release)
	<-done

	assert.True(t, store.State().IsAuthenticated)
	assert.False(t, notified)

	// Closing twice is harmless
	store.Close()
}

func TestRefreshInterval_Option(t *testing.T) {
	sched := &fakeScheduler{}
	prefs := storage.NewPrefs(storage.NewMemory(), zerolog.Nop())
	store := New(newFakeTransport(), prefs, WithScheduler(sched), WithRefreshInterval(time.Second))
	defer store.Close()

	store.Initialize(context.Background())

	assert.Equal(t, time.Second, sched.interval)
}

func TestStore_WorksWithoutStorage(t *testing.T) {
	sched := &fakeScheduler{}
	store := New(newFakeTransport(), storage.NewPrefs(nil, zerolog.Nop()), WithScheduler(sched))
	defer store.Close()

	require.NoError(t, store.Login(context.Background(), LoginForm{Email: "a@b.co", Password: "x", RememberMe: true}))
	assert.Equal(t, StatusAuthenticated, store.Status())

	store.Logout(context.Background())
	assert.Equal(t, StatusUnauthenticated, store.Status())
}
