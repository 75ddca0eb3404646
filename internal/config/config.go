// Package config handles configuration loading for the coordination
// engine. It supports XDG config paths, project-level overrides, and
// environment variables, plus hot reload of the agent roster.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Sweeps    SweepsConfig    `mapstructure:"sweeps"`
	Agents    []AgentConfig   `mapstructure:"agents"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseAWSBedrock routes API calls through AWS Bedrock instead of the
	// Anthropic API directly.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
	MaxTokens     int    `mapstructure:"max_tokens"`
}

// EngineConfig holds coordination engine tunables.
type EngineConfig struct {
	// CoordinatorRole is the role auto-assigned to mediate high-severity
	// conflicts.
	CoordinatorRole string `mapstructure:"coordinator_role"`
	// EscalationCeiling is the escalation level at which conflicts flip
	// to escalated.
	EscalationCeiling int `mapstructure:"escalation_ceiling"`
	// HistorySize is the number of events kept in the replay buffer.
	HistorySize int `mapstructure:"history_size"`
	// NotificationTTL is how long non-persistent notifications live.
	NotificationTTL time.Duration `mapstructure:"notification_ttl"`
}

// SweepsConfig holds the idle-sweep intervals.
type SweepsConfig struct {
	// ConnectionIdle is how long a connection may go without a heartbeat
	// before it is dropped.
	ConnectionIdle time.Duration `mapstructure:"connection_idle"`
	// LockIdle is how long a file lock may sit untouched before it is
	// released.
	LockIdle time.Duration `mapstructure:"lock_idle"`
	// Interval is how often the sweeps run.
	Interval time.Duration `mapstructure:"interval"`
}

// AgentConfig describes one roster entry.
type AgentConfig struct {
	Role            string   `mapstructure:"role"`
	Capacity        int      `mapstructure:"capacity"`
	Specializations []string `mapstructure:"specializations"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.taskweave.yaml in current directory or parent)
// 3. User config (~/.config/taskweave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over user config
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("engine.coordinator_role", cfg.Engine.CoordinatorRole)
	v.Set("engine.escalation_ceiling", cfg.Engine.EscalationCeiling)
	v.Set("engine.history_size", cfg.Engine.HistorySize)
	v.Set("engine.notification_ttl", cfg.Engine.NotificationTTL.String())
	v.Set("sweeps.connection_idle", cfg.Sweeps.ConnectionIdle.String())
	v.Set("sweeps.lock_idle", cfg.Sweeps.LockIdle.String())
	v.Set("sweeps.interval", cfg.Sweeps.Interval.String())

	agents := make([]map[string]any, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, map[string]any{
			"role":            a.Role,
			"capacity":        a.Capacity,
			"specializations": a.Specializations,
		})
	}
	v.Set("agents", agents)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("anthropic.max_tokens", 4096)

	v.SetDefault("engine.coordinator_role", "coordinator")
	v.SetDefault("engine.escalation_ceiling", 3)
	v.SetDefault("engine.history_size", 100)
	v.SetDefault("engine.notification_ttl", "24h")

	// Connections are whole agent sessions, so they get the long session
	// threshold; file locks use the short per-edit one.
	v.SetDefault("sweeps.connection_idle", "30m")
	v.SetDefault("sweeps.lock_idle", "5m")
	v.SetDefault("sweeps.interval", "1m")
}

// getUserConfigDir returns the XDG config directory for taskweave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskweave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskweave")
	}
	return filepath.Join(home, ".config", "taskweave")
}

// findProjectConfig searches for .taskweave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".taskweave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Engine: EngineConfig{
			CoordinatorRole:   "coordinator",
			EscalationCeiling: 3,
			HistorySize:       100,
			NotificationTTL:   24 * time.Hour,
		},
		Sweeps: SweepsConfig{
			ConnectionIdle: 30 * time.Minute,
			LockIdle:       5 * time.Minute,
			Interval:       time.Minute,
		},
	}
}
