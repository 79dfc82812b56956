package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable ApplyEnv reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIKey, EnvAPIURL, EnvPollInterval, EnvLogLevel, EnvStateDir, EnvCacheDir, EnvTelegramToken, envTeloxideToken} {
		t.Setenv(key, "")
	}
}

func TestLoadFrom(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, FileName)
	data := []byte(`api_url: "http://localhost:8080/v1alpha"
api_key: "file-key"
state_dir: "/tmp/state"
cache_dir: "/tmp/cache"
poll_interval_seconds: 5
log_level: "debug"
telegram_token: "tg"
`)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.APIURL != "http://localhost:8080/v1alpha" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.APIKey != "file-key" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.StateDir != "/tmp/state" || cfg.CacheDir != "/tmp/cache" {
		t.Errorf("dirs = %q, %q", cfg.StateDir, cfg.CacheDir)
	}
	if cfg.PollInterval() != 5*time.Second {
		t.Errorf("PollInterval() = %v, want 5s", cfg.PollInterval())
	}
	if cfg.TelegramToken != "tg" {
		t.Errorf("TelegramToken = %q", cfg.TelegramToken)
	}
}

func TestLoadFrom_NotFound(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if !os.IsNotExist(err) {
		t.Errorf("LoadFrom() error should be IsNotExist, got: %v", err)
	}
}

func TestLoadFrom_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("api_key: [unterminated"), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	_, err := LoadFrom(path)
	if err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Errorf("expected parsing error, got %v", err)
	}
}

func TestLoad_CustomPathMissingIsError(t *testing.T) {
	clearEnv(t)
	defer SetPath("")
	SetPath(filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	if !os.IsNotExist(err) {
		t.Errorf("Load() error should be IsNotExist, got: %v", err)
	}
}

func TestLoad_DefaultPathMissingIsEmpty(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.APIKey)
	}
	if cfg.PollInterval() != DefaultPollInterval {
		t.Errorf("PollInterval() = %v, want default", cfg.PollInterval())
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvPollInterval, "12")
	t.Setenv(envTeloxideToken, "legacy-token")

	cfg := &Config{APIKey: "file-key", PollIntervalSeconds: 3}
	cfg.ApplyEnv()

	if cfg.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.APIKey)
	}
	if cfg.PollIntervalSeconds != 12 {
		t.Errorf("PollIntervalSeconds = %d, want 12", cfg.PollIntervalSeconds)
	}
	if cfg.TelegramToken != "legacy-token" {
		t.Errorf("TelegramToken = %q, want legacy fallback", cfg.TelegramToken)
	}
}

func TestApplyEnv_TelegramTokenPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTelegramToken, "new")
	t.Setenv(envTeloxideToken, "old")

	cfg := &Config{}
	cfg.ApplyEnv()
	if cfg.TelegramToken != "new" {
		t.Errorf("TelegramToken = %q, want new", cfg.TelegramToken)
	}
}

func TestApplyEnv_BadIntervalIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPollInterval, "soon")

	cfg := &Config{PollIntervalSeconds: 7}
	cfg.ApplyEnv()
	if cfg.PollIntervalSeconds != 7 {
		t.Errorf("PollIntervalSeconds = %d, want 7", cfg.PollIntervalSeconds)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty is valid", cfg: Config{}},
		{name: "https url", cfg: Config{APIURL: "https://jules.googleapis.com/v1alpha"}},
		{name: "bad url", cfg: Config{APIURL: "ftp://x"}, wantErr: "api_url"},
		{name: "negative interval", cfg: Config{PollIntervalSeconds: -1}, wantErr: "poll_interval_seconds"},
		{name: "bad level", cfg: Config{LogLevel: "chatty"}, wantErr: "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolvedDirs(t *testing.T) {
	cfg := &Config{StateDir: "/s", CacheDir: "/c"}
	if dir, _ := cfg.ResolvedStateDir(); dir != "/s" {
		t.Errorf("ResolvedStateDir() = %q", dir)
	}
	if dir, _ := cfg.ResolvedCacheDir(); dir != "/c" {
		t.Errorf("ResolvedCacheDir() = %q", dir)
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg-config")
	t.Setenv("XDG_CACHE_HOME", "/xdg-cache")
	empty := &Config{}
	if dir, err := empty.ResolvedStateDir(); err != nil || filepath.Base(dir) != AppDir {
		t.Errorf("ResolvedStateDir() = %q, %v", dir, err)
	}
	if dir, err := empty.ResolvedCacheDir(); err != nil || filepath.Base(dir) != AppDir {
		t.Errorf("ResolvedCacheDir() = %q, %v", dir, err)
	}
}
