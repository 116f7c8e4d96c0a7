package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envDataDir           = "RSGO_DATA_DIR"
	envDockerHost        = "RSGO_DOCKER_HOST"
	envDockerTimeout     = "RSGO_DOCKER_TIMEOUT"
	envPollInterval      = "RSGO_POLL_INTERVAL"
	envSnapshotRetention = "RSGO_SNAPSHOT_RETENTION"
	envLogLevel          = "RSGO_LOG_LEVEL"
	envHealthPort        = "RSGO_HEALTH_PORT"
	envMetricsPort       = "RSGO_METRICS_PORT"
	envSlackWebhookURL   = "RSGO_SLACK_WEBHOOK_URL"
	envWebhookURL        = "RSGO_WEBHOOK_URL"
	envWebhookTemplate   = "RSGO_WEBHOOK_TEMPLATE"
	envDryRun            = "RSGO_DRY_RUN"
	envCatalogFile       = "RSGO_CATALOG_FILE"
)

const (
	defaultDataDir           = "./data"
	defaultDockerTimeout     = 30 * time.Second
	defaultPollInterval      = 30 * time.Second
	defaultSnapshotRetention = 24 * time.Hour
	defaultLogLevel          = "info"
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	DataDir           string
	DockerHost        string
	DockerTimeout     time.Duration
	PollInterval      time.Duration
	SnapshotRetention time.Duration
	LogLevel          string
	HealthPort        int
	MetricsPort       int
	SlackWebhookURL   string
	WebhookURL        string
	WebhookTemplate   string
	DryRun            bool
	CatalogFile       string
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DataDir:           defaultDataDir,
		DockerTimeout:     defaultDockerTimeout,
		PollInterval:      defaultPollInterval,
		SnapshotRetention: defaultSnapshotRetention,
		LogLevel:          defaultLogLevel,
	}

	if value, ok := lookupTrimmed(envDataDir); ok && value != "" {
		cfg.DataDir = value
	}
	if value, ok := lookupTrimmed(envDockerHost); ok {
		cfg.DockerHost = value
	}
	if value, ok := lookupTrimmed(envLogLevel); ok && value != "" {
		cfg.LogLevel = value
	}
	if value, ok := lookupTrimmed(envWebhookTemplate); ok {
		cfg.WebhookTemplate = value
	}
	if value, ok := lookupTrimmed(envCatalogFile); ok {
		cfg.CatalogFile = value
	}

	var err error
	if cfg.DockerTimeout, err = positiveDuration(envDockerTimeout, cfg.DockerTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = positiveDuration(envPollInterval, cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.SnapshotRetention, err = positiveDuration(envSnapshotRetention, cfg.SnapshotRetention); err != nil {
		return Config{}, err
	}
	if cfg.HealthPort, err = port(envHealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = port(envMetricsPort); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envDryRun); ok && value != "" {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = dryRun
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok && value != "" {
		if err := validateURL(value, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookURL); ok && value != "" {
		if err := validateURL(value, envWebhookURL); err != nil {
			return Config{}, err
		}
		cfg.WebhookURL = value
	}
	if cfg.WebhookTemplate != "" && cfg.WebhookURL == "" {
		return Config{}, fmt.Errorf("%s requires %s", envWebhookTemplate, envWebhookURL)
	}

	return cfg, nil
}

func positiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", key)
	}
	return parsed, nil
}

func port(key string) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed < 0 || parsed > 65535 {
		return 0, fmt.Errorf("%s must be between 0 and 65535", key)
	}
	return parsed, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
