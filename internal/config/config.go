// ABOUTME: Configuration loading and parsing for quill-console
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete quill-console configuration
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AgentConfig holds the agent subprocess configuration
type AgentConfig struct {
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	AuthMethods []string `yaml:"auth_methods"`
}

// SessionConfig holds prompt-assembly and context settings
type SessionConfig struct {
	VaultBasePath           string `yaml:"vault_base_path"`
	DisableAutoMention      bool   `yaml:"disable_auto_mention"`
	ConvertToWSL            bool   `yaml:"convert_to_wsl"`
	SupportsEmbeddedContext bool   `yaml:"supports_embedded_context"`
	MaxNoteLength           int    `yaml:"max_note_length"`
	MaxSelectionLength      int    `yaml:"max_selection_length"`
}

// DatabaseConfig holds history database configuration. An empty path
// disables persistence.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Session.MaxNoteLength == 0 {
		c.Session.MaxNoteLength = 10000
	}
	if c.Session.MaxSelectionLength == 0 {
		c.Session.MaxSelectionLength = 2000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that required fields are present
func (c *Config) Validate() error {
	if c.Agent.Command == "" {
		return fmt.Errorf("agent.command is required")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
