// ABOUTME: Configuration loading and parsing for agent-console
// ABOUTME: Supports YAML files with environment variable expansion and validation

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agent-console configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Operator OperatorConfig `yaml:"operator"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StoreConfig holds the remote store endpoint and credential.
type StoreConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// WebhooksConfig holds the automation system endpoints. Message events and
// bot-status events may be routed to distinct URLs; either may be empty,
// in which case the corresponding operation reports a configuration error.
type WebhooksConfig struct {
	MessageURL   string `yaml:"message_url"`
	BotStatusURL string `yaml:"bot_status_url"`
}

// OperatorConfig holds console-surface settings.
type OperatorConfig struct {
	// ProfilePath overrides the default operator profile location.
	ProfilePath string `yaml:"profile_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
// Webhook URLs are deliberately not required here: a missing endpoint is
// reported by the operation that needs it, and the rest of the console
// stays usable.
func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required")
	}
	if c.Store.APIKey == "" {
		return fmt.Errorf("store.api_key is required")
	}
	return nil
}
