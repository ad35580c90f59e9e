// Package config provides configuration loading and validation for the CLI
// and server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Config represents the service configuration that can be loaded from a JSON
// file. All fields are optional; missing values use defaults or must be
// provided via CLI flags or environment variables.
type Config struct {
	// Credentials
	YouTubeAPIKey string `json:"youtube_api_key,omitempty"`
	GeminiAPIKey  string `json:"gemini_api_key,omitempty"`
	DatabaseURL   string `json:"database_url,omitempty"`

	// Server
	ServerAddr string `json:"server_addr,omitempty" validate:"omitempty,hostname_port"`

	// Run limits
	DailyQuotaBudget    int `json:"daily_quota_budget,omitempty" validate:"min=0"`
	MaxSearchesPerRun   int `json:"max_searches_per_run,omitempty" validate:"min=0,max=100"`
	MaxResultsPerSearch int `json:"max_results_per_search,omitempty" validate:"min=0,max=50"`
	TargetLibrarySize   int `json:"target_library_size,omitempty" validate:"min=0"`

	// Analysis
	AnalysisConcurrency int `json:"analysis_concurrency,omitempty" validate:"min=0,max=32"`

	// Behavior
	Verbose bool `json:"verbose,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
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

// Validate checks that the configuration has valid values. Required fields
// are enforced later, after merging with flags and environment.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: field '%s' failed '%s' validation", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. This is used to apply config file values as defaults for CLI
// flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.YouTubeAPIKey == "" {
		result.YouTubeAPIKey = defaults.YouTubeAPIKey
	}
	if result.GeminiAPIKey == "" {
		result.GeminiAPIKey = defaults.GeminiAPIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ServerAddr == "" {
		result.ServerAddr = defaults.ServerAddr
	}

	// Int fields: use default if zero
	if result.DailyQuotaBudget == 0 {
		result.DailyQuotaBudget = defaults.DailyQuotaBudget
	}
	if result.MaxSearchesPerRun == 0 {
		result.MaxSearchesPerRun = defaults.MaxSearchesPerRun
	}
	if result.MaxResultsPerSearch == 0 {
		result.MaxResultsPerSearch = defaults.MaxResultsPerSearch
	}
	if result.TargetLibrarySize == 0 {
		result.TargetLibrarySize = defaults.TargetLibrarySize
	}
	if result.AnalysisConcurrency == 0 {
		result.AnalysisConcurrency = defaults.AnalysisConcurrency
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// FromEnv fills credential fields from the environment when unset.
func (c *Config) FromEnv() {
	if c.YouTubeAPIKey == "" {
		c.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")
	}
	if c.GeminiAPIKey == "" {
		c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
}
