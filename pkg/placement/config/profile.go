package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultServer is the backend used when the profile names none
	DefaultServer       = "http://localhost:8080"
	DefaultPollInterval = 5 * time.Second
	profileFileName     = ".placement-chat.yaml"
)

// Profile is the terminal client's saved settings
type Profile struct {
	Server       string `yaml:"server" json:"server"`
	Token        string `yaml:"token,omitempty" json:"token,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// DefaultProfilePath is $HOME/.placement-chat.yaml
func DefaultProfilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, profileFileName), nil
}

// LoadProfile reads a profile. A missing file yields defaults.
// PLACEMENT_SERVER and PLACEMENT_TOKEN override the file.
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read profile: %w", err)
	default:
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("failed to parse profile: %w", err)
		}
	}

	if v := os.Getenv("PLACEMENT_SERVER"); v != "" {
		p.Server = v
	}
	if v := os.Getenv("PLACEMENT_TOKEN"); v != "" {
		p.Token = v
	}
	if p.Server == "" {
		p.Server = DefaultServer
	}
	return p, nil
}

// SaveProfile writes the profile readable only by the owner
func SaveProfile(p *Profile, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	return nil
}

// Interval parses PollInterval, falling back to DefaultPollInterval
func (p *Profile) Interval() (time.Duration, error) {
	if p.PollInterval == "" {
		return DefaultPollInterval, nil
	}
	d, err := time.ParseDuration(p.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", p.PollInterval, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("poll_interval must be at least 1s, got %s", d)
	}
	return d, nil
}
