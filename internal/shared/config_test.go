package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./tapedeck.db" {
			t.Errorf("expected database path ./tapedeck.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8000 {
			t.Errorf("expected server port 8000, got %d", config.Server.Port)
		}

		if config.Cache.MaxSizeGB != 5.0 {
			t.Errorf("expected cache max size 5 GB, got %v", config.Cache.MaxSizeGB)
		}

		if config.Fetcher.DownloadTimeout.Duration != 300*time.Second {
			t.Errorf("expected download timeout 300s, got %v", config.Fetcher.DownloadTimeout)
		}

		if !config.Platforms.Bandcamp || !config.Platforms.YouTube {
			t.Error("expected both platforms enabled by default")
		}

		delays := config.Player.Delays()
		want := []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}
		if len(delays) != len(want) {
			t.Fatalf("expected %d retry delays, got %d", len(want), len(delays))
		}
		for i := range want {
			if delays[i] != want[i] {
				t.Errorf("retry delay %d = %v, want %v", i, delays[i], want[i])
			}
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[server]
host = "0.0.0.0"
port = 9000
admin_token = "secret"

[cache]
dir = "/var/cache/tapedeck"
max_size_gb = 0.5

[fetcher]
max_parallel = 5
download_timeout = "90s"

[platforms]
youtube = false
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Server.Addr() != "0.0.0.0:9000" {
			t.Errorf("expected addr 0.0.0.0:9000, got %s", config.Server.Addr())
		}
		if config.Cache.Dir != "/var/cache/tapedeck" {
			t.Errorf("expected cache dir /var/cache/tapedeck, got %s", config.Cache.Dir)
		}
		if config.Fetcher.MaxParallel != 5 {
			t.Errorf("expected max_parallel 5, got %d", config.Fetcher.MaxParallel)
		}
		if config.Fetcher.DownloadTimeout.Duration != 90*time.Second {
			t.Errorf("expected 90s timeout, got %v", config.Fetcher.DownloadTimeout)
		}
		if config.Platforms.YouTube {
			t.Error("expected youtube disabled")
		}
		if !config.Platforms.Bandcamp {
			t.Error("expected bandcamp to keep its default")
		}
		if config.Database.Path != "./tapedeck.db" {
			t.Errorf("expected default database path to survive, got %s", config.Database.Path)
		}
	})

	t.Run("LoadConfig rejects out of range cache size", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[cache]\nmax_size_gb = 250.0\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("LoadConfig rejects bad durations", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[fetcher]\ndownload_timeout = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error for invalid duration")
		}
	})

	t.Run("ResolveConfig falls back to defaults", func(t *testing.T) {
		config, err := ResolveConfig(filepath.Join(t.TempDir(), "missing.toml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Server.Port != 8000 {
			t.Errorf("expected default port, got %d", config.Server.Port)
		}
	})
}
