// Package config provides configuration types and file loading for the
// simulator.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
)

// Config is the root simulator configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `json:"port" yaml:"port"`
	// Issuer is the OIDC issuer URL advertised in tokens and discovery.
	// When empty it is derived from the listen port.
	Issuer string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	// TokenExpiry is the access and ID token lifetime (e.g. "8h").
	TokenExpiry string `json:"tokenExpiry,omitempty" yaml:"tokenExpiry,omitempty"`
	// RefreshExpiry is the refresh token lifetime (e.g. "7d").
	RefreshExpiry string `json:"refreshExpiry,omitempty" yaml:"refreshExpiry,omitempty"`
	// CodeExpiry is the authorization code and pin lifetime (e.g. "10m").
	CodeExpiry string `json:"codeExpiry,omitempty" yaml:"codeExpiry,omitempty"`
	// Logging configures structured log output.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Accounts are identities seeded at startup.
	Accounts []AccountConfig `json:"accounts,omitempty" yaml:"accounts,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is one of text, json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// AccountConfig describes an identity seeded at startup.
type AccountConfig struct {
	Email    string   `json:"email" yaml:"email"`
	Forename string   `json:"forename,omitempty" yaml:"forename,omitempty"`
	Surname  string   `json:"surname,omitempty" yaml:"surname,omitempty"`
	Roles    []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Port:          5556,
		TokenExpiry:   "8h",
		RefreshExpiry: "7d",
		CodeExpiry:    "10m",
		Logging:       LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a Config from a JSON or YAML file, detected by extension
// (.yaml/.yml for YAML, otherwise JSON). Unset fields fall back to defaults.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	cfg := Default()
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	} else {
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w in file: %s", ErrInvalidJSON, path)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, field := range []struct {
		name, value string
	}{
		{"tokenExpiry", c.TokenExpiry},
		{"refreshExpiry", c.RefreshExpiry},
		{"codeExpiry", c.CodeExpiry},
	} {
		if field.value == "" {
			continue
		}
		if _, err := ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
	}
	for i, acct := range c.Accounts {
		if acct.Email == "" {
			return fmt.Errorf("accounts[%d]: email is required", i)
		}
	}
	return nil
}

// IssuerURL returns the configured issuer, deriving a localhost URL from the
// port when unset.
func (c *Config) IssuerURL() string {
	if c.Issuer != "" {
		return strings.TrimSuffix(c.Issuer, "/")
	}
	return fmt.Sprintf("http://localhost:%d/o", c.Port)
}

// TokenExpiryDuration returns TokenExpiry as a time.Duration.
func (c *Config) TokenExpiryDuration() time.Duration {
	return durationOr(c.TokenExpiry, 8*time.Hour)
}

// RefreshExpiryDuration returns RefreshExpiry as a time.Duration.
func (c *Config) RefreshExpiryDuration() time.Duration {
	return durationOr(c.RefreshExpiry, 7*24*time.Hour)
}

// CodeExpiryDuration returns CodeExpiry as a time.Duration.
func (c *Config) CodeExpiryDuration() time.Duration {
	return durationOr(c.CodeExpiry, 10*time.Minute)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ParseDuration parses a duration string. On top of the standard units it
// accepts a d suffix for days, so "7d" is seven 24-hour days.
func ParseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(s, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(s)
}
