// Package config provides configuration loading and validation for the
// server and worker processes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config is the process configuration. Values come from a JSON file, the
// environment, or flags; later sources win via Merge.
type Config struct {
	Port        int    `json:"port,omitempty" validate:"gte=0,lte=65535"`
	DatabaseURL string `json:"database_url,omitempty" validate:"required"`

	// WebhookToken authorizes out-of-process scrapers posting to the
	// stub-ingest webhook.
	WebhookToken string `json:"webhook_token,omitempty"`

	// AlertWebhookURL receives fire-and-forget match alerts. Empty
	// disables alerting.
	AlertWebhookURL string `json:"alert_webhook_url,omitempty" validate:"omitempty,url"`

	// Worker tuning.
	BudgetSeconds   int `json:"budget_seconds,omitempty" validate:"gte=0"`
	PageSize        int `json:"page_size,omitempty" validate:"gte=0,lte=1000"`
	LeaseTTLSeconds int `json:"lease_ttl_seconds,omitempty" validate:"gte=0"`
	MaxAttempts     int `json:"max_attempts,omitempty" validate:"gte=0"`

	// RefDataPath overrides the embedded reference data (variant families,
	// salvage keywords) with an external versioned file.
	RefDataPath string `json:"ref_data_path,omitempty"`
}

// Defaults applied where neither file nor environment provides a value.
var defaults = Config{
	Port:            8080,
	BudgetSeconds:   25,
	PageSize:        100,
	LeaseTTLSeconds: 60,
	MaxAttempts:     5,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a JSON config file. Returns an error if the file cannot be
// read or parsed.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// FromEnv builds a Config from environment variables. Unset variables
// leave zero values for Merge to fill.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WebhookToken:    os.Getenv("WEBHOOK_TOKEN"),
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		RefDataPath:     os.Getenv("REF_DATA_PATH"),
	}

	for _, v := range []struct {
		env string
		dst *int
	}{
		{"PORT", &cfg.Port},
		{"BUDGET_SECONDS", &cfg.BudgetSeconds},
		{"PAGE_SIZE", &cfg.PageSize},
		{"LEASE_TTL_SECONDS", &cfg.LeaseTTLSeconds},
		{"MAX_ATTEMPTS", &cfg.MaxAttempts},
	} {
		s := os.Getenv(v.env)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", v.env, err)
		}
		*v.dst = n
	}
	return cfg, nil
}

// Merge fills c's zero values from other, then from built-in defaults.
// Returns a new Config; c and other are untouched.
func (c Config) Merge(other Config) Config {
	res := c
	fill := func(dst *Config, src Config) {
		if dst.Port == 0 {
			dst.Port = src.Port
		}
		if dst.DatabaseURL == "" {
			dst.DatabaseURL = src.DatabaseURL
		}
		if dst.WebhookToken == "" {
			dst.WebhookToken = src.WebhookToken
		}
		if dst.AlertWebhookURL == "" {
			dst.AlertWebhookURL = src.AlertWebhookURL
		}
		if dst.BudgetSeconds == 0 {
			dst.BudgetSeconds = src.BudgetSeconds
		}
		if dst.PageSize == 0 {
			dst.PageSize = src.PageSize
		}
		if dst.LeaseTTLSeconds == 0 {
			dst.LeaseTTLSeconds = src.LeaseTTLSeconds
		}
		if dst.MaxAttempts == 0 {
			dst.MaxAttempts = src.MaxAttempts
		}
		if dst.RefDataPath == "" {
			dst.RefDataPath = src.RefDataPath
		}
	}
	fill(&res, other)
	fill(&res, defaults)
	return res
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
