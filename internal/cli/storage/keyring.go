package storage

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	service = "hpactl"
)

// Keyring stores values in the OS keychain/credential manager
type Keyring struct {
	scope string
}

// NewKeyring creates a keyring backend whose keys are namespaced by scope
func NewKeyring(scope string) *Keyring {
	return &Keyring{scope: scope}
}

// keyringKey returns a unique key per server for the given preference
func (k *Keyring) keyringKey(key string) string {
	return fmt.Sprintf("%s-%s", key, k.scope)
}

// Get retrieves a value from the OS keychain/credential manager
func (k *Keyring) Get(key string) (string, error) {
	value, err := keyring.Get(service, k.keyringKey(key))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load %s: %w", key, err)
	}
	return value, nil
}

// Set persists a value in the OS keychain/credential manager
func (k *Keyring) Set(key, value string) error {
	if err := keyring.Set(service, k.keyringKey(key), value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Delete removes a value from the OS keychain/credential manager
func (k *Keyring) Delete(key string) error {
	if err := keyring.Delete(service, k.keyringKey(key)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
