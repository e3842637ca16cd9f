// ABOUTME: Operator profile persisted as a TOML file in the user config dir
// ABOUTME: Holds display name and dark-mode preference across console sessions

package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Profile is the operator's local console preferences.
type Profile struct {
	DisplayName string `toml:"display_name"`
	DarkMode    bool   `toml:"dark_mode"`
}

// DefaultPath returns the per-user profile location, honoring XDG_CONFIG_HOME.
func DefaultPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home dir: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "agent-console", "profile.toml"), nil
}

// Load reads the profile at path. A missing file is not an error: defaults
// are returned so a fresh install works without setup.
func Load(path string) (*Profile, error) {
	p := &Profile{DisplayName: "operator"}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	if err := toml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	return p, nil
}

// Save writes the profile to path, creating parent directories as needed.
func Save(path string, p *Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating profile dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(p); err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return nil
}
