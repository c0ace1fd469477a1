// Package config provides configuration loading for the AirVoice host.
//
// Two kinds of configuration live here:
//   - The host config file (~/.airvoice/config.toml), read once at startup.
//     CLI flags always take precedence over file values.
//   - The AI provider and role prompt stores (ai-config.json, roles.json),
//     pretty-printed JSON files that are read lazily, cached in memory, and
//     merged field-by-field against defaults so older files keep working
//     when new fields are added.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultPort is the fixed relay listening port.
// Mobile clients and the QR pairing payload assume this value.
const DefaultPort = 23456

// DefaultBindAddr listens on all interfaces so phones on the LAN can reach us.
const DefaultBindAddr = "0.0.0.0"

// Config represents the host configuration file structure.
// Field names map to snake_case in TOML files via struct tags.
type Config struct {
	// BindAddr is the address the relay server binds to.
	// Default: 0.0.0.0 (all interfaces, required for LAN access from phones).
	BindAddr string `toml:"bind_addr"`

	// Port is the relay listening port. Default: 23456.
	Port int `toml:"port"`

	// RequireToken enables pairing-token validation on WebSocket connections.
	// Default: true.
	RequireToken bool `toml:"require_token"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement so mobile apps
	// can discover the host without scanning the QR code.
	// Default: false (must be explicitly enabled).
	MdnsEnabled bool `toml:"mdns_enabled"`

	// DataDir is the directory for persisted state (ai-config.json,
	// roles.json, history.json, devices.db).
	// Default: ~/.airvoice
	DataDir string `toml:"data_dir"`

	// OptimizeTimeoutMs is the deadline for a single optimizer call in
	// milliseconds. On timeout the original text is used unchanged.
	// Default: 15000.
	OptimizeTimeoutMs int `toml:"optimize_timeout_ms"`
}

// DefaultDataDir returns the default state directory: ~/.airvoice.
// Returns an error only if the user's home directory cannot be determined.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".airvoice"), nil
}

// DefaultConfigPath returns the default config file location: ~/.airvoice/config.toml.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads a TOML config file from the given path and returns a Config
// with defaults applied to any field the file leaves unset.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns a default Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{RequireToken: true}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		// This allows the host to start without any config file.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return applyDefaults(cfg), nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return applyDefaults(cfg), nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		// If the user names a config file, it should exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	// Fields absent from the file keep their defaults; the decoder only
	// assigns keys that are present.
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return applyDefaults(cfg), nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) *Config {
	if cfg.BindAddr == "" {
		cfg.BindAddr = DefaultBindAddr
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DataDir == "" {
		if dir, err := DefaultDataDir(); err == nil {
			cfg.DataDir = dir
		}
	}
	if cfg.OptimizeTimeoutMs == 0 {
		cfg.OptimizeTimeoutMs = 15000
	}
	return cfg
}
