package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Chunk size bounds accepted on the command line.
const (
	MinChunkSize = 1
	MaxChunkSize = 99
)

// TokenEnv is the environment variable holding the archive API token.
const TokenEnv = "MAST_API_TOKEN"

// Config defines configuration for the templates CLI.
type Config struct {
	ArchiveURL  string        `yaml:"archive_url"`
	AuthURL     string        `yaml:"auth_url"`
	Token       string        `yaml:"token"`
	ChunkSize   int           `yaml:"chunk_size"`
	ObsMode     string        `yaml:"obs_mode"`
	Bucket      string        `yaml:"bucket"`
	PageSize    int           `yaml:"page_size"`
	Timeout     time.Duration `yaml:"timeout"`
	Progress    bool          `yaml:"progress"`
	FilterTable string        `yaml:"filter_table"`
	Retry       RetryConfig   `yaml:"retry"`
	Log         LogConfig     `yaml:"log"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// LogConfig selects the diagnostic log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		ArchiveURL: "https://mast.stsci.edu",
		AuthURL:    "https://auth.mast.stsci.edu/token_info",
		ChunkSize:  8,
		ObsMode:    "all",
		Bucket:     "file://.",
		PageSize:   50000,
		Timeout:    10 * time.Minute,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	ArchiveURL  string          `yaml:"archive_url"`
	AuthURL     string          `yaml:"auth_url"`
	Token       string          `yaml:"token"`
	ChunkSize   *int            `yaml:"chunk_size"`
	ObsMode     string          `yaml:"obs_mode"`
	Bucket      string          `yaml:"bucket"`
	PageSize    int             `yaml:"page_size"`
	Timeout     string          `yaml:"timeout"`
	Progress    bool            `yaml:"progress"`
	FilterTable string          `yaml:"filter_table"`
	Retry       yamlRetryConfig `yaml:"retry"`
	Log         LogConfig       `yaml:"log"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file. Unset keys keep
// their defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	override := Config{
		ArchiveURL:  yc.ArchiveURL,
		AuthURL:     yc.AuthURL,
		Token:       yc.Token,
		ObsMode:     yc.ObsMode,
		Bucket:      yc.Bucket,
		PageSize:    yc.PageSize,
		Progress:    yc.Progress,
		FilterTable: yc.FilterTable,
		Retry:       RetryConfig{Attempts: yc.Retry.Attempts},
		Log:         yc.Log,
	}
	if override.Timeout, err = parseDuration("timeout", yc.Timeout); err != nil {
		return Config{}, err
	}
	if override.Retry.Backoff, err = parseDuration("retry.backoff", yc.Retry.Backoff); err != nil {
		return Config{}, err
	}
	if override.Retry.MaxBackoff, err = parseDuration("retry.max_backoff", yc.Retry.MaxBackoff); err != nil {
		return Config{}, err
	}

	cfg := Default().Merge(override)
	// An explicit chunk_size, zero included, reaches Validate.
	if yc.ChunkSize != nil {
		cfg.ChunkSize = *yc.ChunkSize
	}
	return cfg, nil
}

func parseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the TEMPLATES_ prefix; the archive token is
// also read from MAST_API_TOKEN.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(TokenEnv); v != "" {
		c.Token = v
	}
	if v := os.Getenv("TEMPLATES_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("TEMPLATES_ARCHIVE_URL"); v != "" {
		c.ArchiveURL = v
	}
	if v := os.Getenv("TEMPLATES_AUTH_URL"); v != "" {
		c.AuthURL = v
	}
	if v := os.Getenv("TEMPLATES_OBS_MODE"); v != "" {
		c.ObsMode = v
	}
	if v := os.Getenv("TEMPLATES_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("TEMPLATES_FILTER_TABLE"); v != "" {
		c.FilterTable = v
	}
	if v := os.Getenv("TEMPLATES_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TEMPLATES_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("TEMPLATES_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"TEMPLATES_CHUNK_SIZE", &c.ChunkSize},
		{"TEMPLATES_PAGE_SIZE", &c.PageSize},
		{"TEMPLATES_RETRY_ATTEMPTS", &c.Retry.Attempts},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", e.key, err)
		}
		*e.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TEMPLATES_TIMEOUT", &c.Timeout},
		{"TEMPLATES_RETRY_BACKOFF", &c.Retry.Backoff},
		{"TEMPLATES_RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff},
	}
	for _, e := range durations {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", e.key, err)
		}
		*e.dst = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ArchiveURL == "" {
		return errors.New("config: archive_url is required")
	}
	if c.Bucket == "" {
		return errors.New("config: bucket is required")
	}
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("config: chunk_size must be between %d and %d, got %d", MinChunkSize, MaxChunkSize, c.ChunkSize)
	}
	if c.PageSize <= 0 {
		return errors.New("config: page_size must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.ArchiveURL != "" {
		c.ArchiveURL = override.ArchiveURL
	}
	if override.AuthURL != "" {
		c.AuthURL = override.AuthURL
	}
	if override.Token != "" {
		c.Token = override.Token
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.ObsMode != "" {
		c.ObsMode = override.ObsMode
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.PageSize != 0 {
		c.PageSize = override.PageSize
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.FilterTable != "" {
		c.FilterTable = override.FilterTable
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	return c
}
