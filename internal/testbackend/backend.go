// Package testbackend is an in-memory implementation of the console API
// used by integration tests. It speaks the same cookie-session contract as
// the real backend.
package testbackend

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hpa-platform/hpactl/internal/models"
)

const defaultSessionTTL = time.Hour

// Backend serves the auth and resource endpoints under /api
type Backend struct {
	router     *gin.Engine
	logger     zerolog.Logger
	sessionTTL time.Duration
	origins    []string

	mu           sync.Mutex
	secret       []byte
	accounts     map[string]*account // by lowercase email
	revoked      map[string]bool     // session ids
	resetTokens  map[string]string   // token -> email
	verifyTokens map[string]string   // token -> email
	fixtures     Fixtures
	certPEM      map[string][]byte
	calls        map[string]int
	failures     map[string]Failure
}

type account struct {
	user         models.AuthUser
	passwordHash []byte
}

// Failure is an injected error response
type Failure struct {
	Status int
	Body   any    // JSON encoded
	Raw    string // sent as text/plain when Body is nil
}

// Fixtures are the resource collections served by the list endpoints
type Fixtures struct {
	Clusters     []models.Cluster
	Agents       []models.Agent
	Certificates []models.Certificate
	Tokens       []models.Token
	Sessions     []models.Session
	Users        []models.User
	Audit        []models.AuditLog
	Metrics      models.DashboardMetrics
}

// Option configures a Backend
type Option func(*Backend)

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// WithSessionTTL sets the lifetime of issued session cookies
func WithSessionTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.sessionTTL = ttl }
}

// WithAllowedOrigins sets the CORS origins allowed to send credentials
func WithAllowedOrigins(origins ...string) Option {
	return func(b *Backend) { b.origins = origins }
}

// New creates an empty backend
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:       zerolog.Nop(),
		sessionTTL:   defaultSessionTTL,
		origins:      []string{"http://localhost:5173"},
		secret:       newSecret(),
		accounts:     make(map[string]*account),
		revoked:      make(map[string]bool),
		resetTokens:  make(map[string]string),
		verifyTokens: make(map[string]string),
		certPEM:      make(map[string][]byte),
		calls:        make(map[string]int),
		failures:     make(map[string]Failure),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.setupRouter()
	return b
}

// Handler returns the backend's HTTP handler
func (b *Backend) Handler() http.Handler {
	return b.router
}

// Start serves the backend on a local port. The API base URL is
// server.URL + "/api".
func (b *Backend) Start() *httptest.Server {
	return httptest.NewServer(b.router)
}

// AddUser registers an account with a bcrypt hashed password
func (b *Backend) AddUser(user models.AuthUser, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if user.ID == "" {
		user.ID = newID()
	}
	b.accounts[emailKey(user.Email)] = &account{user: user, passwordHash: hash}
	return nil
}

// Seed replaces the resource fixtures
func (b *Backend) Seed(f Fixtures) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fixtures = f
}

// SetCertificatePEM sets the payload served by the certificate download endpoint
func (b *Backend) SetCertificatePEM(id string, pem []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.certPEM[id] = pem
}

// Fail makes every request to route answer with f until Recover is called.
// route is "METHOD /api/path" using the router's path pattern.
func (b *Backend) Fail(route string, f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = f
}

// Recover removes the injected failure for route
func (b *Backend) Recover(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// Calls returns how many requests reached route
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// ExpireSessions invalidates every issued session cookie
func (b *Backend) ExpireSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secret = newSecret()
}

// ResetToken returns the last password reset token issued for email
func (b *Backend) ResetToken(email string) (string, bool) {
	return b.tokenFor(b.resetTokens, email)
}

// VerificationToken returns the last verification token issued for email
func (b *Backend) VerificationToken(email string) (string, bool) {
	return b.tokenFor(b.verifyTokens, email)
}

func (b *Backend) tokenFor(tokens map[string]string, email string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, owner := range tokens {
		if owner == emailKey(email) {
			return token, true
		}
	}
	return "", false
}

// User returns the stored account for email
func (b *Backend) User(email string) (models.AuthUser, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[emailKey(email)]
	if !ok {
		return models.AuthUser{}, false
	}
	return acc.user, true
}

func (b *Backend) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	b.router = gin.New()
	b.router.Use(gin.Recovery())
	b.router.Use(b.loggingMiddleware())
	b.router.Use(cors.New(cors.Config{
		AllowOrigins:     b.origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	b.router.Use(b.injectionMiddleware())

	api := b.router.Group("/api")

	// Public auth endpoints
	api.POST("/v1/auth/login", b.login)
	api.POST("/v1/auth/register", b.register)
	api.POST("/v1/auth/logout", b.logout)
	api.POST("/v1/auth/forgot-password", b.forgotPassword)
	api.POST("/v1/auth/reset-password", b.resetPassword)
	api.POST("/auth/verify-email", b.verifyEmail)
	api.POST("/auth/resend-verification", b.resendVerification)

	// Session cookie required
	protected := api.Group("")
	protected.Use(b.sessionMiddleware())
	{
		protected.GET("/v1/auth/me", b.currentUser)
		protected.POST("/v1/auth/refresh", b.refresh)

		protected.GET("/dashboard/metrics", b.dashboardMetrics)
		protected.GET("/clusters", listHandler(b, func(f Fixtures) []models.Cluster { return f.Clusters }))
		protected.GET("/agents", listHandler(b, func(f Fixtures) []models.Agent { return f.Agents }))
		protected.GET("/certificates", listHandler(b, func(f Fixtures) []models.Certificate { return f.Certificates }))
		protected.GET("/tokens", listHandler(b, func(f Fixtures) []models.Token { return f.Tokens }))
		protected.GET("/sessions", listHandler(b, func(f Fixtures) []models.Session { return f.Sessions }))
		protected.GET("/users", listHandler(b, func(f Fixtures) []models.User { return f.Users }))
		protected.GET("/audit", listHandler(b, func(f Fixtures) []models.AuditLog { return f.Audit }))
		protected.GET("/certificates/:id/download", b.downloadCertificate)
		protected.POST("/certificates/:id/revoke", b.revokeCertificate)
	}
}

// loggingMiddleware logs every request through zerolog
func (b *Backend) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		b.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Msg("HTTP request")
	}
}

// injectionMiddleware counts calls and answers with injected failures
func (b *Backend) injectionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.Request.Method + " " + c.FullPath()

		b.mu.Lock()
		b.calls[route]++
		f, fail := b.failures[route]
		b.mu.Unlock()

		if !fail {
			c.Next()
			return
		}

		switch {
		case f.Body != nil:
			c.AbortWithStatusJSON(f.Status, f.Body)
		case f.Raw != "":
			c.Data(f.Status, "text/plain; charset=utf-8", []byte(f.Raw))
			c.Abort()
		default:
			c.AbortWithStatus(f.Status)
		}
	}
}

func newSecret() []byte {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("failed to generate session secret: %v", err))
	}
	return secret
}
