// Package config loads the application configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DownloadConfig tunes the periodic feed download.
type DownloadConfig struct {
	// Schedule is a cron expression (e.g. "@every 30m") for the periodic
	// download run.
	Schedule string `yaml:"schedule"`
	// Timeout per batch fetch, as a Go duration string.
	Timeout string `yaml:"timeout"`
	// HostRequestsPerSecond throttles fetches against a single host.
	// Zero disables throttling.
	HostRequestsPerSecond float64 `yaml:"host_requests_per_second"`
}

// RetentionConfig tunes the periodic sweep of old abandoned articles.
type RetentionConfig struct {
	// Days an abandoned article may age before it is swept. Zero disables
	// the sweep.
	Days int `yaml:"days"`
	// KeepTagged exempts tagged articles from the sweep.
	KeepTagged bool `yaml:"keep_tagged"`
}

// FileConfig represents the structure of ~/.feedhaven/config.yaml.
type FileConfig struct {
	// DataDir holds the databases and the staging directory. Defaults to
	// ~/.feedhaven.
	DataDir   string          `yaml:"data_dir"`
	UserAgent string          `yaml:"user_agent"`
	Download  DownloadConfig  `yaml:"download"`
	Retention RetentionConfig `yaml:"retention"`
}

// Default returns the built-in configuration.
func Default() *FileConfig {
	return &FileConfig{
		Download: DownloadConfig{
			Schedule: "@every 30m",
			Timeout:  "10s",
		},
		Retention: RetentionConfig{
			Days:       90,
			KeepTagged: true,
		},
	}
}

// FetchTimeout parses the configured batch fetch timeout, falling back to
// the given default when unset or invalid.
func (c *FileConfig) FetchTimeout(fallback time.Duration) time.Duration {
	if c.Download.Timeout == "" {
		return fallback
	}
	timeout, err := time.ParseDuration(c.Download.Timeout)
	if err != nil {
		return fallback
	}
	return timeout
}

// LoadConfigFile loads configuration from ~/.feedhaven/config.yaml. Returns
// the defaults if the file doesn't exist (not an error). Returns an error
// if the file exists but cannot be parsed.
func LoadConfigFile() (*FileConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	return LoadConfigPath(filepath.Join(homeDir, ".feedhaven", "config.yaml"))
}

// LoadConfigPath loads configuration from an explicit path, applying the
// defaults for anything the file leaves unset.
func LoadConfigPath(configPath string) (*FileConfig, error) {
	cfg := Default()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
