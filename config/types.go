// Package config provides configuration management for the scenekit
// runtime: typed settings, file loading with environment overrides and
// hot-reload watching.
package config

import (
	"fmt"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// IsValid checks if the environment is valid.
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvProduction:
		return true
	default:
		return false
	}
}

// Config represents the complete scenekit runtime configuration.
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Scene actor configuration
	Scene SceneConfig `yaml:"scene" json:"scene"`

	// Supervision configuration
	Supervisor SupervisorConfig `yaml:"supervisor" json:"supervisor"`

	// Root scene configuration
	Root RootConfig `yaml:"root" json:"root"`
}

// AppConfig holds application identity settings.
type AppConfig struct {
	// Name of the application
	Name string `yaml:"name" json:"name"`

	// Environment the application runs in
	Environment Environment `yaml:"environment" json:"environment"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level"`
}

// SceneConfig holds per-actor defaults.
type SceneConfig struct {
	// MailboxSize is the default mailbox buffer per scene actor
	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size"`

	// DeactivateTimeout bounds the deactivation handshake during
	// dynamic-child teardown
	DeactivateTimeout time.Duration `yaml:"deactivate_timeout" json:"deactivate_timeout"`
}

// SupervisorConfig holds restart policy settings.
type SupervisorConfig struct {
	// MaxRestarts tolerated per scene within Window
	MaxRestarts int `yaml:"max_restarts" json:"max_restarts"`

	// Window is the restart intensity window
	Window time.Duration `yaml:"window" json:"window"`

	// StopTimeout bounds waiting for a child to terminate
	StopTimeout time.Duration `yaml:"stop_timeout" json:"stop_timeout"`
}

// RootConfig names the root scene module and its init arguments.
type RootConfig struct {
	// Module is the registered name of the root scene module
	Module string `yaml:"module" json:"module"`

	// Args are passed verbatim to the root scene's Init
	Args map[string]any `yaml:"args" json:"args"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "scenekit",
			Environment: EnvDevelopment,
		},
		Log: LogConfig{
			Level: "info",
		},
		Scene: SceneConfig{
			MailboxSize:       64,
			DeactivateTimeout: time.Second,
		},
		Supervisor: SupervisorConfig{
			MaxRestarts: 3,
			Window:      5 * time.Second,
			StopTimeout: 5 * time.Second,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidEnvironment, c.App.Environment)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if c.Scene.MailboxSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMailboxSize, c.Scene.MailboxSize)
	}
	if c.Supervisor.MaxRestarts < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRestarts, c.Supervisor.MaxRestarts)
	}
	return nil
}
