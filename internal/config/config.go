// Package config handles julezz configuration.
//
// The config file is optional and lives at <user config dir>/julezz/config.yaml
// unless overridden with --config:
//
//	api_url: "https://..."          - Jules API base URL
//	api_key: "..."                  - Jules API key
//	state_dir: "/path"              - Roster, aliases, owner target, current session
//	cache_dir: "/path"              - Per-session activity records
//	poll_interval_seconds: 30       - Bot watcher interval
//	log_level: "warn"               - debug, info, warn or error
//	telegram_token: "..."           - Bot token
//
// Environment variables take precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file.
const FileName = "config.yaml"

// AppDir is the directory name used under the user config and cache dirs.
const AppDir = "julezz"

// DefaultPollInterval is the watcher interval when none is configured.
const DefaultPollInterval = 30 * time.Second

// Environment variables recognized by ApplyEnv.
const (
	EnvAPIKey        = "JULES_API_KEY"
	EnvAPIURL        = "JULES_API_URL"
	EnvPollInterval  = "JULEZZ_POLL_INTERVAL_SECONDS"
	EnvLogLevel      = "JULEZZ_LOG_LEVEL"
	EnvStateDir      = "JULEZZ_STATE_DIR"
	EnvCacheDir      = "JULEZZ_CACHE_DIR"
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
	// envTeloxideToken is the token variable older deployments set.
	envTeloxideToken = "TELOXIDE_TOKEN"
)

// customPath holds an optional custom config file path.
// When empty, Load() uses the default location.
var customPath string

// SetPath sets a custom config file path for Load() to use.
// Pass an empty string to reset to the default path.
func SetPath(path string) {
	customPath = path
}

// FindPath resolves the config file path using the same logic as Load(),
// without reading or parsing the file contents.
func FindPath() (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, AppDir, FileName), nil
}

var (
	urlPattern = regexp.MustCompile(`^https?://[^\s]+$`)
	logLevels  = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
)

// Config is the merged view of the config file and environment.
type Config struct {
	APIURL              string `yaml:"api_url,omitempty"`
	APIKey              string `yaml:"api_key,omitempty"`
	StateDir            string `yaml:"state_dir,omitempty"`
	CacheDir            string `yaml:"cache_dir,omitempty"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds,omitempty"`
	LogLevel            string `yaml:"log_level,omitempty"`
	TelegramToken       string `yaml:"telegram_token,omitempty"`
}

// Load reads the config file, applies environment overrides and validates
// the result. A missing default config file is not an error; a missing
// custom one is.
func Load() (*Config, error) {
	path, err := FindPath()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		if !os.IsNotExist(err) || customPath != "" {
			return nil, err
		}
		cfg = &Config{}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFrom reads and parses a configuration file from a specific path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err // Return unwrapped for os.IsNotExist() checks
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyEnv overrides fields with any non-empty environment variables.
func (c *Config) ApplyEnv() {
	setIfEnv(&c.APIKey, EnvAPIKey)
	setIfEnv(&c.APIURL, EnvAPIURL)
	setIfEnv(&c.LogLevel, EnvLogLevel)
	setIfEnv(&c.StateDir, EnvStateDir)
	setIfEnv(&c.CacheDir, EnvCacheDir)
	if !setIfEnv(&c.TelegramToken, EnvTelegramToken) {
		setIfEnv(&c.TelegramToken, envTeloxideToken)
	}

	// Unparseable or non-positive values are ignored.
	if v := strings.TrimSpace(os.Getenv(EnvPollInterval)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PollIntervalSeconds = n
		}
	}
}

func setIfEnv(dst *string, key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	*dst = v
	return true
}

// Validate checks field formats. All fields are optional.
func (c *Config) Validate() error {
	if c.APIURL != "" && !urlPattern.MatchString(c.APIURL) {
		return fmt.Errorf("api_url must be a valid HTTP(S) URL")
	}
	if c.PollIntervalSeconds < 0 {
		return fmt.Errorf("poll_interval_seconds must not be negative")
	}
	if !logLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}

// PollInterval returns the watcher interval.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ResolvedStateDir returns the directory for global state files.
func (c *Config) ResolvedStateDir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, AppDir), nil
}

// ResolvedCacheDir returns the directory for per-session activity records.
func (c *Config) ResolvedCacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache dir: %w", err)
	}
	return filepath.Join(dir, AppDir), nil
}
