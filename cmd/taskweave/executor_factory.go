package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/exec"
)

// createExecutor builds the task executor from the loaded configuration.
// It routes through AWS Bedrock when configured, otherwise uses the
// Anthropic API directly.
func createExecutor(cfg *config.Config) (exec.Executor, error) {
	apiKey, err := config.GetAPIKey(cfg)
	if err != nil {
		return nil, err
	}

	executor, err := exec.NewAnthropicExecutor(exec.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
		MaxTokens:     int64(cfg.Anthropic.MaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	return executor, nil
}
