package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie the backend issues on login
const SessionCookieName = "hpa_session"

// CookieExpiry reads the expiry of a session cookie that carries a JWT.
// The signature is not checked: the backend stays the authority, this only
// tells the user when the session will lapse. Opaque cookies report false.
func CookieExpiry(value string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, &claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// FindSessionCookie picks the session cookie out of cookies
func FindSessionCookie(cookies []*http.Cookie) (*http.Cookie, bool) {
	for _, c := range cookies {
		if c.Name == SessionCookieName {
			return c, true
		}
	}
	return nil, false
}
