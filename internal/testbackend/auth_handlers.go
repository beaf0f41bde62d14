package testbackend

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/hpa-platform/hpactl/internal/models"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	Name       string `json:"name" binding:"required"`
	TenantName string `json:"tenant_name"`
}

// AuthResponse carries the user separately from its tenant and role, the
// way the real backend does on login and register
type AuthResponse struct {
	User     *models.AuthUser `json:"user"`
	TenantID string           `json:"tenant_id,omitempty"`
	Role     models.Role      `json:"role,omitempty"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type verifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "VALIDATION_ERROR"})
}

func (b *Backend) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b.mu.Lock()
	acc, ok := b.accounts[emailKey(req.Email)]
	b.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials", "code": "INVALID_CREDENTIALS"})
		return
	}

	if err := b.issueSession(c, acc.user.ID, acc.user.Email); err != nil {
		b.logger.Error().Err(err).Msg("Failed to issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	b.mu.Lock()
	now := time.Now().UTC().Format(time.RFC3339)
	acc.user.LastLogin = &now
	user := acc.user
	b.mu.Unlock()

	b.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User logged in")
	c.JSON(http.StatusOK, authResponse(user))
}

func (b *Backend) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create user"})
		return
	}

	first, last, _ := strings.Cut(strings.TrimSpace(req.Name), " ")
	user := models.AuthUser{
		ID:        newID(),
		Email:     req.Email,
		FirstName: first,
		LastName:  strings.TrimSpace(last),
		Role:      models.RoleAdmin,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		TenantID:  "tenant-" + strings.ToLower(newID()),
	}

	b.mu.Lock()
	if _, exists := b.accounts[emailKey(req.Email)]; exists {
		b.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"message": "Email already registered", "code": "EMAIL_EXISTS"})
		return
	}
	b.accounts[emailKey(req.Email)] = &account{user: user, passwordHash: hash}
	b.verifyTokens[newID()] = emailKey(req.Email)
	b.mu.Unlock()

	if err := b.issueSession(c, user.ID, user.Email); err != nil {
		b.logger.Error().Err(err).Msg("Failed to issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	b.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")

	// Registration answers inside the standard envelope
	c.JSON(http.StatusCreated, models.APIResponse[AuthResponse]{
		Data:    authResponse(user),
		Success: true,
	})
}

func (b *Backend) logout(c *gin.Context) {
	b.revokeSession(c)
	clearSession(c)
	c.Status(http.StatusNoContent)
}

func (b *Backend) currentUser(c *gin.Context) {
	c.JSON(http.StatusOK, c.MustGet("user").(models.AuthUser))
}

func (b *Backend) refresh(c *gin.Context) {
	user := c.MustGet("user").(models.AuthUser)

	b.revokeSession(c)
	if err := b.issueSession(c, user.ID, user.Email); err != nil {
		b.logger.Error().Err(err).Msg("Failed to issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session refreshed"})
}

func (b *Backend) forgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// Unknown addresses get the same answer
	b.mu.Lock()
	if _, ok := b.accounts[emailKey(req.Email)]; ok {
		b.resetTokens[newID()] = emailKey(req.Email)
	}
	b.mu.Unlock()

	c.Status(http.StatusNoContent)
}

func (b *Backend) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update password"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	email, ok := b.resetTokens[req.Token]
	acc, exists := b.accounts[email]
	if !ok || !exists {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired reset token", "code": "INVALID_TOKEN"})
		return
	}

	acc.passwordHash = hash
	delete(b.resetTokens, req.Token)
	c.Status(http.StatusNoContent)
}

func (b *Backend) verifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	email, ok := b.verifyTokens[req.Token]
	acc, exists := b.accounts[email]
	if !ok || !exists {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired verification token", "code": "INVALID_TOKEN"})
		return
	}

	acc.user.Verified = true
	delete(b.verifyTokens, req.Token)
	c.Status(http.StatusNoContent)
}

func (b *Backend) resendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b.mu.Lock()
	if acc, ok := b.accounts[emailKey(req.Email)]; ok && !acc.user.Verified {
		b.verifyTokens[newID()] = emailKey(req.Email)
	}
	b.mu.Unlock()

	c.Status(http.StatusNoContent)
}

// authResponse moves tenant and role out of the nested user
func authResponse(user models.AuthUser) AuthResponse {
	nested := user
	nested.TenantID = ""
	nested.Role = ""
	return AuthResponse{User: &nested, TenantID: user.TenantID, Role: user.Role}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
