// Package config provides configuration for the evaluation service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Run execution
	ExecutorMode        string        `yaml:"executor_mode"`
	DefaultAgentBaseURL string        `yaml:"agent_base_url"`
	AgentTimeout        time.Duration `yaml:"agent_timeout"`
	AgentMaxAttempts    int           `yaml:"agent_max_attempts"`
	AgentRetryBackoff   time.Duration `yaml:"agent_retry_backoff"`
	DefaultConcurrency  int           `yaml:"run_concurrency"`
	RunPolicyFile       string        `yaml:"run_policy_file"`

	// Uploads
	UploadDir           string `yaml:"upload_dir"`
	PublicUploadBaseURL string `yaml:"public_upload_base_url"`

	// Run progress feed
	FeedPingInterval time.Duration `yaml:"feed_ping_interval"`
	FeedWriteTimeout time.Duration `yaml:"feed_write_timeout"`
	FeedReadTimeout  time.Duration `yaml:"feed_read_timeout"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:           8080,
		DatabaseURL:        "file:eval.db?mode=rwc&_journal_mode=WAL",
		ExecutorMode:       "synthetic",
		AgentTimeout:       60 * time.Second,
		AgentMaxAttempts:   2,
		AgentRetryBackoff:  500 * time.Millisecond,
		DefaultConcurrency: 4,
		UploadDir:          "./data/uploads",
		FeedPingInterval:   30 * time.Second,
		FeedWriteTimeout:   10 * time.Second,
		FeedReadTimeout:    60 * time.Second,
		LogLevel:           "info",
	}
}

// Load loads configuration from the optional CONFIG_FILE overlay and then
// from environment variables. Environment variables win.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ExecutorMode = getEnv("EXECUTOR_MODE", cfg.ExecutorMode)
	cfg.DefaultAgentBaseURL = getEnv("AGENT_BASE_URL", cfg.DefaultAgentBaseURL)
	cfg.AgentTimeout = getEnvDuration("AGENT_TIMEOUT_MS", cfg.AgentTimeout)
	cfg.AgentMaxAttempts = getEnvInt("AGENT_MAX_ATTEMPTS", cfg.AgentMaxAttempts)
	cfg.AgentRetryBackoff = getEnvDuration("AGENT_RETRY_BACKOFF_MS", cfg.AgentRetryBackoff)
	cfg.DefaultConcurrency = getEnvInt("RUN_CONCURRENCY", cfg.DefaultConcurrency)
	cfg.RunPolicyFile = getEnv("RUN_POLICY_FILE", cfg.RunPolicyFile)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.PublicUploadBaseURL = getEnv("PUBLIC_UPLOAD_BASE_URL", cfg.PublicUploadBaseURL)
	cfg.FeedPingInterval = getEnvDuration("FEED_PING_INTERVAL_MS", cfg.FeedPingInterval)
	cfg.FeedWriteTimeout = getEnvDuration("FEED_WRITE_TIMEOUT_MS", cfg.FeedWriteTimeout)
	cfg.FeedReadTimeout = getEnvDuration("FEED_READ_TIMEOUT_MS", cfg.FeedReadTimeout)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.ExecutorMode {
	case "synthetic", "agent":
	default:
		return fmt.Errorf("invalid executor mode %q (want synthetic or agent)", c.ExecutorMode)
	}
	if c.AgentMaxAttempts < 1 {
		c.AgentMaxAttempts = 1
	}
	if c.DefaultConcurrency < 1 {
		c.DefaultConcurrency = 1
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, int(defaultVal/time.Millisecond))) * time.Millisecond
}
