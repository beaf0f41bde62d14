package storage

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrNotFound is returned by a Backend when a key has no value
var ErrNotFound = errors.New("storage: key not found")

// Backend is the raw key-value storage the preference helper sits on.
// Every method reports failures; Prefs turns them into logged no-ops.
type Backend interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Closer is implemented by backends holding resources
type Closer interface {
	Close() error
}

// Open returns the backend named by kind, scoped to the given API base URL
// so that preferences of different servers never mix.
func Open(kind, path, baseURL string) (Backend, error) {
	scope := ScopeFor(baseURL)

	switch kind {
	case "", "keyring":
		return NewKeyring(scope), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		db, err := OpenSQLite(path, scope)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected keyring, sqlite or memory)", kind)
	}
}

// ScopeFor derives the storage scope from an API base URL (its host)
func ScopeFor(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	return u.Host
}
