package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/genomidi/midi/theme"
)

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Listen       string `json:"listen,omitempty"`
	MaxBodyBytes int64  `json:"maxBodyBytes,omitempty"`
}

// MusicConfig holds the defaults used to turn a sequence into notes
type MusicConfig struct {
	Tempo      float64 `json:"tempo,omitempty"`
	NoteLength float64 `json:"noteLength,omitempty"` // in quarter notes
	Octave     int     `json:"octave"`
	Velocity   uint8   `json:"velocity,omitempty"`
	MaxBases   int     `json:"maxBases,omitempty"` // 0 = no limit
	Theme      string  `json:"theme,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig `json:"server,omitempty"`
	Music    MusicConfig  `json:"music,omitempty"`
	LogLevel string       `json:"logLevel,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:       ":8080",
			MaxBodyBytes: 1 << 20,
		},
		Music: MusicConfig{
			Tempo:      120,
			NoteLength: 0.25,
			Octave:     4,
			Velocity:   64,
			MaxBases:   100,
			Theme:      theme.DefaultID,
		},
		LogLevel: "info",
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "genomidi"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from path, or from ConfigPath if path is empty.
// Values missing from the file keep their defaults, and a missing file gives
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the values the encoder would reject anyway, so a bad
// config fails at startup instead of on the first request
func (c *Config) Validate() error {
	if c.Music.Tempo <= 0 {
		return fmt.Errorf("music.tempo must be positive, got %g", c.Music.Tempo)
	}
	if c.Music.NoteLength <= 0 {
		return fmt.Errorf("music.noteLength must be positive, got %g", c.Music.NoteLength)
	}
	if c.Music.Velocity > 127 {
		return fmt.Errorf("music.velocity must be at most 127, got %d", c.Music.Velocity)
	}
	if c.Music.MaxBases < 0 {
		return fmt.Errorf("music.maxBases must not be negative, got %d", c.Music.MaxBases)
	}
	if _, ok := theme.ByID(c.Music.Theme); !ok {
		return fmt.Errorf("unknown music.theme %q", c.Music.Theme)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.maxBodyBytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	return nil
}
