// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents the configuration file format
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Loader handles configuration loading from files and the environment.
type Loader struct {
	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix:     "SCENEKIT",
		defaultConfig: DefaultConfig(),
	}
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads configuration from the given file (optional), applies
// environment overrides and validates the result.
func (l *Loader) Load(filename string) (*Config, error) {
	config := l.defaultConfig
	if config == nil {
		config = DefaultConfig()
	}

	if filename != "" {
		loaded, err := l.LoadFromFile(filename)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", filename, err)
		}
		config = loaded
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific file, on top of the
// defaults.
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, filename)
		}
		return nil, err
	}

	config := DefaultConfig()
	if l.defaultConfig != nil {
		clone := *l.defaultConfig
		config = &clone
	}

	switch formatOf(filename) {
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	}

	return config, nil
}

// applyEnv overrides settings from environment variables.
func (l *Loader) applyEnv(config *Config) {
	if v := l.env("APP_NAME"); v != "" {
		config.App.Name = v
	}
	if v := l.env("ENVIRONMENT"); v != "" {
		config.App.Environment = Environment(v)
	}
	if v := l.env("LOG_LEVEL"); v != "" {
		config.Log.Level = strings.ToLower(v)
	}
	if v := l.env("MAILBOX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scene.MailboxSize = n
		}
	}
	if v := l.env("MAX_RESTARTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Supervisor.MaxRestarts = n
		}
	}
	if v := l.env("ROOT_MODULE"); v != "" {
		config.Root.Module = v
	}
}

func (l *Loader) env(key string) string {
	return os.Getenv(l.envPrefix + "_" + key)
}

func formatOf(filename string) Format {
	switch filepath.Ext(filename) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}
