package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfigFile(t, `
anthropic:
  api_key: sk-ant-test-key-1234567890
  model: claude-sonnet-4-20250514
  max_tokens: 2048
engine:
  coordinator_role: lead
  escalation_ceiling: 5
  history_size: 250
sweeps:
  connection_idle: 10m
  lock_idle: 2m
agents:
  - role: pm
    capacity: 2
    specializations: [planning]
  - role: dev
    capacity: 3
    specializations: [backend, api]
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-test-key-1234567890" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d, want 2048", cfg.Anthropic.MaxTokens)
	}
	if cfg.Engine.CoordinatorRole != "lead" || cfg.Engine.EscalationCeiling != 5 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Sweeps.ConnectionIdle != 10*time.Minute || cfg.Sweeps.LockIdle != 2*time.Minute {
		t.Errorf("sweeps = %+v", cfg.Sweeps)
	}
	if len(cfg.Agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(cfg.Agents))
	}
	if cfg.Agents[1].Role != "dev" || cfg.Agents[1].Capacity != 3 || len(cfg.Agents[1].Specializations) != 2 {
		t.Errorf("agent[1] = %+v", cfg.Agents[1])
	}
}

func TestLoadFromPath_Defaults(t *testing.T) {
	path := writeConfigFile(t, "anthropic:\n  api_key: sk-ant-x\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Engine.CoordinatorRole != "coordinator" {
		t.Errorf("CoordinatorRole = %q, want coordinator", cfg.Engine.CoordinatorRole)
	}
	if cfg.Engine.EscalationCeiling != 3 {
		t.Errorf("EscalationCeiling = %d, want 3", cfg.Engine.EscalationCeiling)
	}
	if cfg.Engine.HistorySize != 100 {
		t.Errorf("HistorySize = %d, want 100", cfg.Engine.HistorySize)
	}
	if cfg.Sweeps.LockIdle != 5*time.Minute {
		t.Errorf("LockIdle = %v, want 5m", cfg.Sweeps.LockIdle)
	}
	if cfg.Sweeps.ConnectionIdle != 30*time.Minute {
		t.Errorf("ConnectionIdle = %v, want 30m", cfg.Sweeps.ConnectionIdle)
	}
}

func TestLoadFromPath_ExpandsEnvInAPIKey(t *testing.T) {
	t.Setenv("TEST_TW_KEY", "sk-ant-from-env")
	path := writeConfigFile(t, "anthropic:\n  api_key: ${TEST_TW_KEY}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-from-env" {
		t.Errorf("APIKey = %q, want expanded env value", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Engine.CoordinatorRole != "coordinator" || cfg.Engine.EscalationCeiling != 3 {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Sweeps.LockIdle != 5*time.Minute || cfg.Sweeps.Interval != time.Minute {
		t.Errorf("sweep defaults = %+v", cfg.Sweeps)
	}
	if cfg.Anthropic.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", cfg.Anthropic.MaxTokens)
	}
}

func TestSaveAndReload(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Engine.CoordinatorRole = "lead"
	cfg.Agents = []AgentConfig{{Role: "pm", Capacity: 2, Specializations: []string{"planning"}}}

	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFromPath(GetUserConfigPath())
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Engine.CoordinatorRole != "lead" {
		t.Errorf("CoordinatorRole = %q, want lead", loaded.Engine.CoordinatorRole)
	}
	if len(loaded.Agents) != 1 || loaded.Agents[0].Role != "pm" {
		t.Errorf("agents = %+v", loaded.Agents)
	}
}

func TestWatchRoster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("agents:\n  - role: pm\n    capacity: 2\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	updates := make(chan []AgentConfig, 1)
	rw, err := WatchRoster(path, func(agents []AgentConfig) {
		select {
		case updates <- agents:
		default:
		}
	})
	if err != nil {
		t.Fatalf("WatchRoster failed: %v", err)
	}
	defer rw.Close()

	updated := "agents:\n  - role: pm\n    capacity: 2\n  - role: dev\n    capacity: 3\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case agents := <-updates:
		if len(agents) != 2 {
			t.Errorf("roster = %d agents, want 2", len(agents))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for roster reload")
	}
}
