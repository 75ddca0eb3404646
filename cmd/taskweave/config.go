package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify taskweave configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/taskweave/config.yaml
Project-specific overrides can be placed in .taskweave.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("anthropic.max_tokens: %d\n", cfg.Anthropic.MaxTokens)
	fmt.Printf("engine.coordinator_role: %s\n", cfg.Engine.CoordinatorRole)
	fmt.Printf("engine.escalation_ceiling: %d\n", cfg.Engine.EscalationCeiling)
	fmt.Printf("engine.history_size: %d\n", cfg.Engine.HistorySize)
	fmt.Printf("engine.notification_ttl: %s\n", cfg.Engine.NotificationTTL)
	fmt.Printf("sweeps.connection_idle: %s\n", cfg.Sweeps.ConnectionIdle)
	fmt.Printf("sweeps.lock_idle: %s\n", cfg.Sweeps.LockIdle)
	fmt.Printf("sweeps.interval: %s\n", cfg.Sweeps.Interval)
	fmt.Printf("agents: %d configured\n", len(cfg.Agents))
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "anthropic.max_tokens":
		return strconv.Itoa(cfg.Anthropic.MaxTokens), nil
	case "engine.coordinator_role":
		return cfg.Engine.CoordinatorRole, nil
	case "engine.escalation_ceiling":
		return strconv.Itoa(cfg.Engine.EscalationCeiling), nil
	case "engine.history_size":
		return strconv.Itoa(cfg.Engine.HistorySize), nil
	case "engine.notification_ttl":
		return cfg.Engine.NotificationTTL.String(), nil
	case "sweeps.connection_idle":
		return cfg.Sweeps.ConnectionIdle.String(), nil
	case "sweeps.lock_idle":
		return cfg.Sweeps.LockIdle.String(), nil
	case "sweeps.interval":
		return cfg.Sweeps.Interval.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_aws_bedrock: %w", err)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "anthropic.max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_tokens: %w", err)
		}
		cfg.Anthropic.MaxTokens = n
	case "engine.coordinator_role":
		cfg.Engine.CoordinatorRole = value
	case "engine.escalation_ceiling":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for escalation_ceiling: %w", err)
		}
		cfg.Engine.EscalationCeiling = n
	case "engine.history_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for history_size: %w", err)
		}
		cfg.Engine.HistorySize = n
	case "engine.notification_ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for notification_ttl: %w", err)
		}
		cfg.Engine.NotificationTTL = d
	case "sweeps.connection_idle":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for connection_idle: %w", err)
		}
		cfg.Sweeps.ConnectionIdle = d
	case "sweeps.lock_idle":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for lock_idle: %w", err)
		}
		cfg.Sweeps.LockIdle = d
	case "sweeps.interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for interval: %w", err)
		}
		cfg.Sweeps.Interval = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
