package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"tempolog/internal/logger"
)

// EnvPrefix is prepended to every environment variable the configuration reads.
const EnvPrefix = "TEMPO_WORKLOG_AUTOMATION_"

// Config represents the application configuration
type Config struct {
	Jira  JiraConfig  `yaml:"jira"`
	Tempo TempoConfig `yaml:"tempo"`
	HTTP  HTTPConfig  `yaml:"http"`
	Batch BatchConfig `yaml:"batch"`
	Log   LogConfig   `yaml:"log"`
	Audit AuditConfig `yaml:"audit"`
}

// JiraConfig represents the issue tracker configuration
type JiraConfig struct {
	URL           string `yaml:"url"`
	AccountEmail  string `yaml:"account_email"`
	Token         string `yaml:"token"`
	CacheIssueIDs *bool  `yaml:"cache_issue_ids"` // nil means enabled
}

// TempoConfig represents the worklog service configuration
type TempoConfig struct {
	URL             string  `yaml:"url"`
	Token           string  `yaml:"token"`
	AuthorAccountID string  `yaml:"author_account_id"`
	MaxRetries      int     `yaml:"max_retries"`
	BackoffFactor   float64 `yaml:"backoff_factor"` // seconds
}

// HTTPConfig represents the shared HTTP client configuration
type HTTPConfig struct {
	Timeout int `yaml:"timeout"` // Request timeout in seconds (default: 30)
}

// BatchConfig represents the batch orchestrator configuration
type BatchConfig struct {
	MaxInFlight int `yaml:"max_in_flight"` // 0 runs every item at once
}

// LogConfig represents the logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Name   string `yaml:"name"`
	Format string `yaml:"format"`
}

// AuditConfig represents the run audit configuration
type AuditConfig struct {
	Path string `yaml:"path"` // Empty disables the audit store
}

// CacheEnabled reports whether resolved issue ids should be memoized.
func (c JiraConfig) CacheEnabled() bool {
	return c.CacheIssueIDs == nil || *c.CacheIssueIDs
}

// Load loads the configuration from the given file path. An empty path skips
// the file and builds the configuration from the environment alone.
func Load(filePath string) (*Config, error) {
	config := &Config{}

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // Trusted file path input
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", filePath, err)
		}
	}

	if err := applyEnvVars(config); err != nil {
		return nil, err
	}

	setDefaults(config)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// applyEnvVars applies environment variables to the configuration
func applyEnvVars(config *Config) error {
	// Issue tracker
	if v := getenv("JIRA_BASE_API_URL"); v != "" {
		config.Jira.URL = v
	}
	if v := getenv("JIRA_ACCOUNT_EMAIL"); v != "" {
		config.Jira.AccountEmail = v
	}
	if v := getenv("JIRA_TOKEN"); v != "" {
		config.Jira.Token = v
	}
	if v := getenv("CACHE_ISSUE_IDS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sCACHE_ISSUE_IDS: %q", EnvPrefix, v)
		}
		config.Jira.CacheIssueIDs = &b
	}

	// Worklog service
	if v := getenv("TEMPO_BASE_API_URL"); v != "" {
		config.Tempo.URL = v
	}
	if v := getenv("TEMPO_OAUTH_TOKEN"); v != "" {
		config.Tempo.Token = v
	}
	if v := getenv("AUTHOR_ACCOUNT_ID"); v != "" {
		config.Tempo.AuthorAccountID = v
	}
	if v := getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_RETRIES: %q", EnvPrefix, v)
		}
		config.Tempo.MaxRetries = n
	}
	if v := getenv("BACKOFF_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sBACKOFF_FACTOR: %q", EnvPrefix, v)
		}
		config.Tempo.BackoffFactor = f
	}

	if v := getenv("HTTP_TIMEOUT"); v != "" {
		if t, err := strconv.Atoi(v); err == nil && t > 0 {
			config.HTTP.Timeout = t
		}
	}
	if v := getenv("MAX_IN_FLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_IN_FLIGHT: %q", EnvPrefix, v)
		}
		config.Batch.MaxInFlight = n
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	if v := getenv("LOGGER_NAME"); v != "" {
		config.Log.Name = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		config.Log.Format = v
	}

	if v := getenv("AUDIT_DB_PATH"); v != "" {
		config.Audit.Path = v
	}
	return nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	if config.Tempo.MaxRetries == 0 {
		config.Tempo.MaxRetries = 5
	}
	if config.Tempo.BackoffFactor == 0 {
		config.Tempo.BackoffFactor = 0.5
	}
	if config.HTTP.Timeout == 0 {
		config.HTTP.Timeout = 30
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	config.Log.Level = strings.ToLower(config.Log.Level)
	if config.Log.Level == "warning" {
		config.Log.Level = "warn"
	}
	if config.Log.Name == "" {
		config.Log.Name = logger.DefaultName
	}
	config.Log.Format = strings.ToLower(config.Log.Format)
	if config.Log.Format == "" {
		config.Log.Format = "json"
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if err := validateURL("jira.url", cfg.Jira.URL); err != nil {
		return err
	}
	if cfg.Jira.AccountEmail == "" {
		return fmt.Errorf("jira.account_email is required")
	}
	if cfg.Jira.Token == "" {
		return fmt.Errorf("jira.token is required")
	}

	if err := validateURL("tempo.url", cfg.Tempo.URL); err != nil {
		return err
	}
	if cfg.Tempo.Token == "" {
		return fmt.Errorf("tempo.token is required")
	}
	if cfg.Tempo.AuthorAccountID == "" {
		return fmt.Errorf("tempo.author_account_id is required")
	}
	if cfg.Tempo.MaxRetries < 1 {
		return fmt.Errorf("invalid tempo.max_retries: %d (must be at least 1)", cfg.Tempo.MaxRetries)
	}
	if cfg.Tempo.BackoffFactor < 0 {
		return fmt.Errorf("invalid tempo.backoff_factor: %v (must be non-negative)", cfg.Tempo.BackoffFactor)
	}

	if cfg.HTTP.Timeout < 0 {
		return fmt.Errorf("invalid http.timeout: %d (must be non-negative)", cfg.HTTP.Timeout)
	}
	if cfg.Batch.MaxInFlight < 0 {
		return fmt.Errorf("invalid batch.max_in_flight: %d (must be non-negative)", cfg.Batch.MaxInFlight)
	}

	if _, ok := logger.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("invalid log.level: %q (valid values are debug, info, warn, error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log.format: %q (must be json or text)", cfg.Log.Format)
	}

	return nil
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %v", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s: %q (must be an http or https URL)", key, raw)
	}
	return nil
}
