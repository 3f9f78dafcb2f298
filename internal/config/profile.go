package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Profile holds the user's subscription defaults.
type Profile struct {
	SubscriptionID string `toml:"subscription_id"`
	Endpoint       string `toml:"endpoint,omitempty"`
	BlobEndpoint   string `toml:"blob_endpoint,omitempty"`
	Location       string `toml:"location,omitempty"`
	AffinityGroup  string `toml:"affinity_group,omitempty"`
}

// DefaultProfilePath returns ~/.azsvc/profile.toml.
func DefaultProfilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".azsvc", "profile.toml"), nil
}

// LoadProfile reads a profile from disk. Returns nil if not found.
func LoadProfile(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var p Profile
	if _, err := toml.Decode(string(b), &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return &p, nil
}

// SaveProfile writes a profile, creating its directory if needed.
func SaveProfile(path string, p *Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
