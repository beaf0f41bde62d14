// Package userconfig holds the per-user profile hpactl keeps between runs:
// the console it talks to and where local session state lives.
package userconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	profileFile = "config.json"
	stateFile   = "state.db"
)

// Profile is ~/.config/hpactl/config.json
type Profile struct {
	// APIBaseURL is the console set with `hpactl use`
	APIBaseURL string `json:"api_base_url,omitempty"`
	// StatePath overrides the location of the sqlite preference store
	StatePath string `json:"state_path,omitempty"`

	dir string
}

// configDir holds the profile and local state
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "hpactl"), nil
}

// Load reads the profile. A missing file is an empty profile.
func Load() (*Profile, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}

	p := &Profile{dir: dir}

	data, err := os.ReadFile(p.path())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return p, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read profile %s: %w", p.path(), err)
	}

	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", p.path(), err)
	}
	return p, nil
}

// Save writes the profile, readable only by its owner
func (p *Profile) Save() error {
	if err := os.MkdirAll(p.dir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", p.dir, err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	if err := os.WriteFile(p.path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write profile %s: %w", p.path(), err)
	}
	return nil
}

// StateFile is where the sqlite backend keeps preferences and cookies
func (p *Profile) StateFile() string {
	if p.StatePath != "" {
		return p.StatePath
	}
	return filepath.Join(p.dir, stateFile)
}

func (p *Profile) path() string {
	return filepath.Join(p.dir, profileFile)
}
