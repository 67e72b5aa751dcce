// ABOUTME: YAML configuration with defaults and file round-trip
// ABOUTME: A missing config file yields defaults; flags in main override
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon's file-level settings.
type Config struct {
	// MediaPort is the media server's TCP listen port; 0 picks an
	// ephemeral port.
	MediaPort int `yaml:"media_port"`

	// PrimaryInterface, when set, is preferred when choosing the LAN
	// address baked into share URLs.
	PrimaryInterface string `yaml:"primary_interface"`

	// SearchTarget is the SSDP ST header value probed for.
	SearchTarget string `yaml:"search_target"`

	// MusicDir is scanned into the playlist at startup when set.
	MusicDir string `yaml:"music_dir"`

	// Mode is the playlist traversal mode name.
	Mode string `yaml:"mode"`

	// BitPerfect asks the native output to match each file's own format.
	BitPerfect bool `yaml:"bit_perfect"`

	// Volume is the initial volume, 0.0-1.0.
	Volume float64 `yaml:"volume"`

	// LogFile receives the structured log stream.
	LogFile string `yaml:"log_file"`

	// Announce controls mDNS advertisement of the HTTP surface.
	Announce bool `yaml:"announce"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		MediaPort:    8090,
		SearchTarget: "urn:schemas-upnp-org:device:MediaRenderer:1",
		Mode:         "sequential",
		Volume:       1.0,
		LogFile:      "castbridge.log",
		Announce:     true,
	}
}

// Load reads path, falling back to defaults when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
