package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Cache     CacheConfig     `toml:"cache"`
	Fetcher   FetcherConfig   `toml:"fetcher"`
	Platforms PlatformsConfig `toml:"platforms"`
	Player    PlayerConfig    `toml:"player"`
	Redis     RedisConfig     `toml:"redis"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	AdminToken   string   `toml:"admin_token"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CacheConfig contains the media cache location and initial budget.
type CacheConfig struct {
	Dir       string  `toml:"dir"`
	MaxSizeGB float64 `toml:"max_size_gb"`
}

// FetcherConfig contains extraction and download settings.
type FetcherConfig struct {
	YTDLPPath       string   `toml:"ytdlp_path"`
	MaxParallel     int      `toml:"max_parallel"`
	MaxAttempts     int      `toml:"max_attempts"`
	DownloadTimeout Duration `toml:"download_timeout"`
	FailureTTL      Duration `toml:"failure_ttl"`
	RatePerSecond   float64  `toml:"rate_per_second"`
}

// PlatformsConfig contains the initial per-platform enablement flags.
type PlatformsConfig struct {
	Bandcamp bool `toml:"bandcamp"`
	YouTube  bool `toml:"youtube"`
}

// PlayerConfig contains settings for the terminal player client.
type PlayerConfig struct {
	ServerURL   string     `toml:"server_url"`
	RetryDelays []Duration `toml:"retry_delays"`
}

// RedisConfig contains the optional settings push channel.
type RedisConfig struct {
	URL     string `toml:"url"`
	Channel string `toml:"channel"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration wraps [time.Duration] so TOML values like "300s" decode via [toml.TextUnmarshaler].
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file fall back to the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks ranges the rest of the application relies on.
func (c *Config) Validate() error {
	if err := ValidateCacheSizeGB(c.Cache.MaxSizeGB); err != nil {
		return fmt.Errorf("%w: [cache] %v", ErrInvalidConfig, err)
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("%w: [cache] dir is required", ErrInvalidConfig)
	}
	if err := ValidateMaxParallel(c.Fetcher.MaxParallel); err != nil {
		return fmt.Errorf("%w: [fetcher] max_parallel: %v", ErrInvalidConfig, err)
	}
	if c.Fetcher.MaxAttempts < 1 {
		return fmt.Errorf("%w: [fetcher] max_attempts must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// Delays returns the player retry schedule as plain durations.
func (p PlayerConfig) Delays() []time.Duration {
	delays := make([]time.Duration, 0, len(p.RetryDelays))
	for _, d := range p.RetryDelays {
		delays = append(delays, d.Duration)
	}
	return delays
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveConfig loads the config at path when present and falls back to defaults otherwise.
func ResolveConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}
