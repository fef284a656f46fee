package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"CONFIG_DIR", dir)

	fileCfg := `{
		"remoteBaseURL": "https://drive.example.com/v1",
		"concurrency": 8,
		"logLevel": "warn"
	}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(fileCfg), 0600); err != nil {
		t.Fatal(err)
	}

	// Env wins over file, file wins over defaults.
	t.Setenv(EnvPrefix+"LOG_LEVEL", "debug")
	t.Setenv(EnvPrefix+"MIRROR_ROOT", "/srv/mirror")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RemoteBaseURL != "https://drive.example.com/v1" {
		t.Errorf("file value lost: %q", cfg.RemoteBaseURL)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("file value lost: %d", cfg.Concurrency)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("env did not override file: %q", cfg.LogLevel)
	}
	if cfg.MirrorRoot != "/srv/mirror" {
		t.Errorf("env value lost: %q", cfg.MirrorRoot)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("default lost: %d", cfg.MaxRetries)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultAccount != "default" || cfg.ConflictPolicy != "prompt" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"concurrency too high", func(c *Config) { c.Concurrency = 65 }},
		{"concurrency zero", func(c *Config) { c.Concurrency = 0 }},
		{"batch size zero", func(c *Config) { c.BatchSize = 0 }},
		{"retries negative", func(c *Config) { c.MaxRetries = -1 }},
		{"retry delay too small", func(c *Config) { c.RetryBaseDelay = 50 }},
		{"timeout zero", func(c *Config) { c.RequestTimeout = 0 }},
		{"chunk size not 320KiB aligned", func(c *Config) { c.ChunkSize = 1000 }},
		{"unknown conflict policy", func(c *Config) { c.ConflictPolicy = "ask-later" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvPrefix+"CONFIG_DIR", t.TempDir())

	cfg := DefaultConfig()
	cfg.RemoteBaseURL = "https://drive.example.com/v1"
	cfg.MirrorRoot = "/data/mirror"
	cfg.ExcludePatterns = []string{"*.iso"}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RemoteBaseURL != cfg.RemoteBaseURL || loaded.MirrorRoot != cfg.MirrorRoot {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
	if len(loaded.ExcludePatterns) != 1 || loaded.ExcludePatterns[0] != "*.iso" {
		t.Errorf("exclude patterns lost: %v", loaded.ExcludePatterns)
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.GetRetryBaseDelay() != time.Second {
		t.Errorf("GetRetryBaseDelay = %v", cfg.GetRetryBaseDelay())
	}
	if cfg.GetRequestTimeout() != 60*time.Second {
		t.Errorf("GetRequestTimeout = %v", cfg.GetRequestTimeout())
	}
}
