package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Radix-Obsidian/Voco-ai/internal/config"
)

func TestLogLevelIsValid(t *testing.T) {
	t.Parallel()

	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "verbose", "INFO "} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestAllowedEnvKeys(t *testing.T) {
	t.Parallel()

	for _, k := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "TAVILY_API_KEY",
		"DEEPGRAM_API_KEY", "CARTESIA_API_KEY", "GITHUB_TOKEN",
		"TTS_VOICE", "SUPABASE_URL", "GOOGLE_API_KEY",
	} {
		if !config.IsAllowedEnvKey(k) {
			t.Errorf("%s should be allowed", k)
		}
	}
	for _, k := range []string{"PATH", "HOME", "AWS_SECRET_ACCESS_KEY", "deepgram_api_key"} {
		if config.IsAllowedEnvKey(k) {
			t.Errorf("%s should be rejected", k)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	if cfg.Server.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Session.TokenBudget != 160_000 {
		t.Errorf("TokenBudget = %d", cfg.Session.TokenBudget)
	}
	if cfg.Session.CheckpointKeep != 50 {
		t.Errorf("CheckpointKeep = %d", cfg.Session.CheckpointKeep)
	}
	if cfg.Session.SilenceFrames != 40 || cfg.Session.BargeInFrames != 2 {
		t.Errorf("VAD frames = %d/%d", cfg.Session.SilenceFrames, cfg.Session.BargeInFrames)
	}
	if cfg.Session.DataDir == "" {
		t.Error("DataDir not defaulted")
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:9999"
	cfg.Session.TokenBudget = 8000
	cfg.ApplyDefaults()

	if cfg.Server.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr overwritten: %q", cfg.Server.ListenAddr)
	}
	if cfg.Session.TokenBudget != 8000 {
		t.Errorf("TokenBudget overwritten: %d", cfg.Session.TokenBudget)
	}
}

func TestApplyEnvOverridesKeys(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg-env")
	t.Setenv("CARTESIA_API_KEY", "ca-env")
	t.Setenv("TTS_VOICE", "voice-env")
	t.Setenv("ANTHROPIC_API_KEY", "an-env")

	cfg := &config.Config{}
	cfg.Providers.LLMFull.Name = "anthropic"
	cfg.Providers.LLMFull.APIKey = "an-yaml"
	cfg.Providers.STT.APIKey = "dg-yaml"
	cfg.Providers.TTS.APIKey = "ca-yaml"
	cfg.ApplyEnv()

	if cfg.Providers.LLMFull.APIKey != "an-env" {
		t.Errorf("llm key = %q", cfg.Providers.LLMFull.APIKey)
	}
	if cfg.Providers.STT.APIKey != "dg-env" {
		t.Errorf("stt key = %q", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.TTS.APIKey != "ca-env" {
		t.Errorf("tts key = %q", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.TTS.VoiceID != "voice-env" {
		t.Errorf("voice = %q", cfg.Providers.TTS.VoiceID)
	}
}

func TestAppDataDirIncludesAppID(t *testing.T) {
	t.Parallel()

	dir := config.AppDataDir()
	if !strings.Contains(dir, config.AppID) {
		t.Errorf("AppDataDir = %q, missing %q", dir, config.AppID)
	}
}

func TestDerivedPaths(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Session.DataDir = filepath.Join(os.TempDir(), "voco-test")

	if got := cfg.SessionsDir(); got != filepath.Join(cfg.Session.DataDir, "sessions") {
		t.Errorf("SessionsDir = %q", got)
	}
	if got := cfg.MemoryPath(); got != filepath.Join(cfg.Session.DataDir, ".voco", "sessions.jsonl") {
		t.Errorf("MemoryPath = %q", got)
	}
}
