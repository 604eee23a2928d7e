package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"submission-observer/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills in values the YAML may omit.
func (c *Config) applyDefaults() {
	if c.Realtime.WebsocketPath == "" {
		c.Realtime.WebsocketPath = "/websocket/tracker/websocket"
	}
	if c.Realtime.ReconnectDelaySeconds <= 0 {
		c.Realtime.ReconnectDelaySeconds = 5
	}
	if c.Realtime.MaxReportedReconnects <= 0 {
		c.Realtime.MaxReportedReconnects = 20
	}
	if c.Realtime.ETATickMillis <= 0 {
		c.Realtime.ETATickMillis = 500
	}
	if c.Rest.RequestTimeout <= 0 {
		c.Rest.RequestTimeout = 10
	}
	if c.Rest.MaxRetries <= 0 {
		c.Rest.MaxRetries = 3
	}
	if c.Rest.HealthTimeoutSeconds <= 0 {
		c.Rest.HealthTimeoutSeconds = 5
	}
	if c.Journal.RetentionDays <= 0 {
		c.Journal.RetentionDays = 7
	}
	if c.Status.Host == "" {
		c.Status.Host = "127.0.0.1"
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base URL cannot be empty")
	}
	parsed, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server base URL '%s': %v", c.Server.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server base URL must be http(s), got '%s'", parsed.Scheme)
	}

	// Validate Realtime configuration
	if !strings.HasPrefix(c.Realtime.WebsocketPath, "/") {
		return fmt.Errorf("websocket path must start with '/': %s", c.Realtime.WebsocketPath)
	}

	// Validate Credential configuration
	if c.Credential.TokenFile == "" && c.Credential.EnvVar == "" {
		return fmt.Errorf("credential token_file or env_var must be configured")
	}

	// Validate Journal configuration
	if c.Journal.Enabled && c.Journal.DBPath == "" {
		return fmt.Errorf("journal db_path cannot be empty when the journal is enabled")
	}

	// Validate Status server configuration
	if c.Status.Enabled {
		if c.Status.Port <= 1024 || c.Status.Port > 65535 {
			return fmt.Errorf("invalid status server port number: %d (must be between 1025 and 65535)", c.Status.Port)
		}
	}

	// Validate Workspaces
	for i, w := range c.Workspaces {
		if w.RepositoryURL == "" {
			return fmt.Errorf("workspace %d must have a repository_url", i)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
