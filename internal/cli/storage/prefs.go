package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Keys of the remembered preferences. Clear only ever touches these.
const (
	KeyRememberMe = "hpa_remember_me"
	KeyUser       = "hpa_user"
)

var preferenceKeys = []string{KeyRememberMe, KeyUser}

// Prefs is a best-effort cache of the remember-me flag and the user profile.
// It is never the source of truth for authentication: a backend that is
// missing or failing degrades every operation to a logged no-op.
type Prefs struct {
	backend Backend
	logger  zerolog.Logger
}

// NewPrefs wraps backend. A nil backend yields a Prefs that stores nothing.
func NewPrefs(backend Backend, logger zerolog.Logger) *Prefs {
	return &Prefs{backend: backend, logger: logger}
}

// Get returns the value stored under key
func (p *Prefs) Get(key string) (string, bool) {
	var value string
	err := p.try("get", key, func(b Backend) error {
		v, err := b.Get(key)
		value = v
		return err
	})
	if err != nil {
		return "", false
	}
	return value, true
}

// Set stores value under key
func (p *Prefs) Set(key, value string) {
	_ = p.try("set", key, func(b Backend) error {
		return b.Set(key, value)
	})
}

// Remove deletes key
func (p *Prefs) Remove(key string) {
	_ = p.try("remove", key, func(b Backend) error {
		return b.Delete(key)
	})
}

// Clear removes every recognized preference key, and nothing else
func (p *Prefs) Clear() {
	for _, key := range preferenceKeys {
		p.Remove(key)
	}
}

// RememberMe reports whether the remember-me flag is stored as "true"
func (p *Prefs) RememberMe() bool {
	value, ok := p.Get(KeyRememberMe)
	return ok && value == "true"
}

// SetRememberMe stores the remember-me flag
func (p *Prefs) SetRememberMe(remember bool) {
	if remember {
		p.Set(KeyRememberMe, "true")
		return
	}
	p.Set(KeyRememberMe, "false")
}

// SaveUser stores the JSON encoding of user
func (p *Prefs) SaveUser(user any) {
	data, err := json.Marshal(user)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to encode user for storage")
		return
	}
	p.Set(KeyUser, string(data))
}

// LoadUser decodes the stored user into out, reporting whether one was found
func (p *Prefs) LoadUser(out any) bool {
	raw, ok := p.Get(KeyUser)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		p.logger.Warn().Err(err).Msg("Ignoring unreadable stored user")
		return false
	}
	return true
}

// try runs op against the backend, converting errors and panics into a
// logged result. ErrNotFound is returned but not logged.
func (p *Prefs) try(op, key string, fn func(Backend) error) (err error) {
	if p == nil || p.backend == nil {
		return errors.New("storage unavailable")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("storage panic: %v", r)
			p.logger.Warn().Str("op", op).Str("key", key).Err(err).Msg("Storage unavailable")
		}
	}()

	err = fn(p.backend)
	if err != nil && !errors.Is(err, ErrNotFound) {
		p.logger.Warn().Str("op", op).Str("key", key).Err(err).Msg("Storage operation failed")
	}
	return err
}
