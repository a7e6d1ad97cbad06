package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per stage. Used by [Validate]
// to warn about likely typos without rejecting third-party implementations.
var ValidProviderNames = map[string][]string{
	"llm": {"anthropic", "openai", "gemini", "ollama"},
	"stt": {"deepgram", "whisper"},
	"tts": {"cartesia"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults and environment overrides applied. A missing file
// yields the all-defaults config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result. Unknown YAML fields are
// rejected so typos surface immediately.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLMFull.Name)
	validateProviderName("llm", cfg.Providers.LLMFast.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLMFull.Name == "" {
		slog.Warn("providers.llm_full is not configured; the engine cannot answer coding turns")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; voice turns cannot be transcribed")
	}

	if s := cfg.Providers.TTS.Speed; s != 0 && (s < 0.5 || s > 2.0) {
		errs = append(errs, fmt.Errorf("providers.tts.speed %.2f is out of range [0.5, 2.0]", s))
	}
	if cfg.Session.TokenBudget < 0 {
		errs = append(errs, fmt.Errorf("session.token_budget must be positive, got %d", cfg.Session.TokenBudget))
	}
	if cfg.Session.CheckpointKeep < 0 {
		errs = append(errs, fmt.Errorf("session.checkpoint_keep must be positive, got %d", cfg.Session.CheckpointKeep))
	}

	serverNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		if srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
