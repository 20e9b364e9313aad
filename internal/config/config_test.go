package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Provider.Name != "anthropic" {
		t.Errorf("provider.name = %q", cfg.Provider.Name)
	}
	if cfg.Agent.MaxSteps != 5 {
		t.Errorf("agent.max_steps = %d, want 5", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.MaxTokens != 4096 {
		t.Errorf("agent.max_tokens = %d", cfg.Agent.MaxTokens)
	}
	if cfg.Agent.ToolTimeout != 30*time.Second {
		t.Errorf("agent.tool_timeout = %v", cfg.Agent.ToolTimeout)
	}
	if cfg.Agent.ToolConcurrency != 4 {
		t.Errorf("agent.tool_concurrency = %d", cfg.Agent.ToolConcurrency)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("storage.driver = %q", cfg.Storage.Driver)
	}
	if cfg.Gateway.Addr != ":8080" {
		t.Errorf("gateway.addr = %q", cfg.Gateway.Addr)
	}
	if cfg.Agent.SystemPrompt == "" {
		t.Errorf("default system prompt missing")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "numera.yaml", `
provider:
  name: openai
  api_key: sk-test
  model: gpt-4o-mini
agent:
  max_steps: 8
  system_prompt: "You keep the books."
storage:
  driver: sqlite
  path: /tmp/numera.db
gateway:
  addr: ":9090"
log:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider.Name != "openai" || cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("provider not loaded: %+v", cfg.Provider)
	}
	if cfg.Agent.MaxSteps != 8 {
		t.Errorf("agent.max_steps = %d, want 8", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.SystemPrompt != "You keep the books." {
		t.Errorf("system prompt = %q", cfg.Agent.SystemPrompt)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/numera.db" {
		t.Errorf("storage not loaded: %+v", cfg.Storage)
	}
	if cfg.Gateway.Addr != ":9090" {
		t.Errorf("gateway.addr = %q", cfg.Gateway.Addr)
	}
	// Unset fields still get defaults.
	if cfg.Agent.MaxTokens != 4096 {
		t.Errorf("agent.max_tokens default lost: %d", cfg.Agent.MaxTokens)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeFile(t, "numera.json5", `{
		// comments are allowed here
		provider: {name: "openai", api_key: "sk-test"},
		agent: {max_steps: 3},
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider.Name != "openai" {
		t.Errorf("provider.name = %q", cfg.Provider.Name)
	}
	if cfg.Agent.MaxSteps != 3 {
		t.Errorf("agent.max_steps = %d, want 3", cfg.Agent.MaxSteps)
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("NUMERA_TEST_KEY", "sk-from-env")

	path := writeFile(t, "numera.yaml", `
provider:
  name: anthropic
  api_key: ${NUMERA_TEST_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want expanded env value", cfg.Provider.APIKey)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.Provider.Name = "cohere" }, "provider.name"},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = "sqlite"; c.Storage.Path = "" }, "storage.path"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"excessive steps", func(c *Config) { c.Agent.MaxSteps = 500 }, "max_steps"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsUnknownYAMLFields(t *testing.T) {
	path := writeFile(t, "numera.yaml", `
providerr:
  name: anthropic
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for misspelled top-level key")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault(\"\") failed: %v", err)
	}
	if cfg.Agent.MaxSteps != 5 {
		t.Errorf("expected defaults, got %+v", cfg.Agent)
	}

	cfg, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault(missing) failed: %v", err)
	}
	if cfg.Gateway.Addr != ":8080" {
		t.Errorf("expected defaults for missing file")
	}
}
