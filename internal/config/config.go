package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.wabox/config.toml.
type Config struct {
	DefaultSession string    `toml:"default_session"`
	MediaDir       string    `toml:"media_dir"` // overrides the per-session media directory
	Broadcast      Broadcast `toml:"broadcast"`
}

// Broadcast seeds the recipient group map and the default send list.
type Broadcast struct {
	DefaultJIDs []string    `toml:"default_jids"`
	Groups      []GroupSeed `toml:"groups"`
}

// GroupSeed is one configured recipient group. Order in the config file is
// the order index selectors address.
type GroupSeed struct {
	Name string   `toml:"name"`
	JIDs []string `toml:"jids"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
