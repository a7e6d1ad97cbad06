package config_test

import (
	"strings"
	"testing"

	"github.com/Radix-Obsidian/Voco-ai/internal/config"
)

const validYAML = `
server:
  listen_addr: "127.0.0.1:8000"
  log_level: debug
providers:
  llm_full:
    name: anthropic
    model: claude-sonnet-4-5
  llm_fast:
    name: anthropic
    model: claude-haiku-4-5
  stt:
    name: deepgram
    model: nova-2
  tts:
    name: cartesia
    voice_id: custom-voice
    speed: 1.2
session:
  token_budget: 120000
ledger:
  postgres_dsn: "postgres://localhost/voco"
mcp:
  servers:
    - name: github
      command: "npx @modelcontextprotocol/server-github"
      env:
        GITHUB_TOKEN: tok
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.LLMFull.Model != "claude-sonnet-4-5" {
		t.Errorf("LLMFull.Model = %q", cfg.Providers.LLMFull.Model)
	}
	if cfg.Providers.TTS.Speed != 1.2 {
		t.Errorf("TTS.Speed = %v", cfg.Providers.TTS.Speed)
	}
	if cfg.Session.TokenBudget != 120000 {
		t.Errorf("TokenBudget = %d", cfg.Session.TokenBudget)
	}
	// Unset fields still receive defaults.
	if cfg.Session.CheckpointKeep != 50 {
		t.Errorf("CheckpointKeep = %d", cfg.Session.CheckpointKeep)
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Name != "github" {
		t.Errorf("MCP servers = %+v", cfg.MCP.Servers)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adress: \":9\"\n"))
	if err == nil {
		t.Fatal("typoed field accepted")
	}
}

func TestLoadFromReaderEmptyYieldsDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Server.LogLevel = "bananas"
	cfg.Providers.TTS.Speed = 3.5
	cfg.MCP.Servers = []config.MCPServerConfig{
		{Name: "", Command: ""},
		{Name: "dup", Command: "run"},
		{Name: "dup", Command: "run"},
	}

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "speed", "name is required", "command is required", "duplicate"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load("/nonexistent/voco.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
}
