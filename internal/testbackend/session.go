package testbackend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// SessionCookieName is the cookie carrying the signed session
const SessionCookieName = "hpa_session"

var (
	ErrMissingSession = errors.New("missing session cookie")
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionRevoked = errors.New("session revoked")
)

// sessionClaims are the claims of the session JWT
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (b *Backend) issueSession(c *gin.Context, userID, email string) error {
	now := time.Now()
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        newID(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.sessionTTL)),
		},
	}

	b.mu.Lock()
	secret := b.secret
	b.mu.Unlock()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return fmt.Errorf("failed to sign session: %w", err)
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(b.sessionTTL),
		MaxAge:   int(b.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func clearSession(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// validateSession parses and checks the session cookie on the request
func (b *Backend) validateSession(c *gin.Context) (*sessionClaims, error) {
	raw, err := c.Cookie(SessionCookieName)
	if err != nil || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingSession
	}

	b.mu.Lock()
	secret := b.secret
	b.mu.Unlock()

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}

	b.mu.Lock()
	revoked := b.revoked[claims.ID]
	b.mu.Unlock()
	if revoked {
		return nil, ErrSessionRevoked
	}

	return claims, nil
}

func (b *Backend) revokeSession(c *gin.Context) {
	claims, err := b.validateSession(c)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.revoked[claims.ID] = true
	b.mu.Unlock()
}

// sessionMiddleware rejects requests without a live session
func (b *Backend) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := b.validateSession(c)
		if err != nil {
			b.logger.Debug().Err(err).Msg("Rejected request without session")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Not authenticated",
				"code":    "UNAUTHORIZED",
			})
			return
		}

		user, ok := b.User(claims.Email)
		if !ok || user.ID != claims.Subject {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "User not found",
				"code":    "UNAUTHORIZED",
			})
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

func newID() string {
	return ulid.Make().String()
}
