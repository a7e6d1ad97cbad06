// Command voco-engine is the main entry point for the Voco cognitive engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/Radix-Obsidian/Voco-ai/internal/app"
	"github.com/Radix-Obsidian/Voco-ai/internal/config"
	"github.com/Radix-Obsidian/Voco-ai/internal/resilience"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm/anyllm"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/stt"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/stt/deepgram"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/stt/whisperapi"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/tts"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/tts/cartesia"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", config.DefaultConfigPath(), "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voco-engine: config file %q not found — the desktop app writes one on first launch\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voco-engine: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voco engine starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithConfigPath(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("engine ready — waiting for the desktop client")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// All backends share the same pattern: optional APIKey + optional BaseURL,
	// routed through any-llm.
	for _, providerName := range anyllm.SupportedBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisperapi.Option
		if entry.Model != "" {
			opts = append(opts, whisperapi.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisperapi.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, whisperapi.WithBaseURL(entry.BaseURL))
		}
		return whisperapi.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("cartesia", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []cartesia.Option
		if entry.Model != "" {
			opts = append(opts, cartesia.WithModel(entry.Model))
		}
		if entry.VoiceID != "" {
			opts = append(opts, cartesia.WithVoice(entry.VoiceID))
		}
		if entry.BaseURL != "" {
			opts = append(opts, cartesia.WithEndpoint(entry.BaseURL))
		}
		if entry.Speed != 0 {
			opts = append(opts, cartesia.WithSpeed(speedLabel(entry.Speed)))
		}
		return cartesia.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Model, error) {
		var opts []energy.Option
		if floor := optFloat(entry.Options, "noise_floor"); floor > 0 {
			opts = append(opts, energy.WithNoiseFloor(floor))
		}
		if decay := optFloat(entry.Options, "floor_decay"); decay > 0 {
			opts = append(opts, energy.WithFloorDecay(decay))
		}
		return energy.New(opts...), nil
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	full, err := buildLLM(reg, cfg.Providers.LLMFull)
	if err != nil {
		return nil, fmt.Errorf("create full model %q: %w", cfg.Providers.LLMFull.Name, err)
	}
	ps.Full = full
	slog.Info("provider created", "kind", "llm_full", "name", cfg.Providers.LLMFull.Name, "model", cfg.Providers.LLMFull.Model)

	fast, err := buildLLM(reg, cfg.Providers.LLMFast)
	if err != nil {
		return nil, fmt.Errorf("create fast model %q: %w", cfg.Providers.LLMFast.Name, err)
	}
	ps.Fast = fast
	slog.Info("provider created", "kind", "llm_fast", "name", cfg.Providers.LLMFast.Name, "model", cfg.Providers.LLMFast.Model)

	sp, err := buildSTT(reg, cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT = sp
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	tp, err := buildTTS(reg, cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = tp
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	vp, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad model %q: %w", cfg.Providers.VAD.Name, err)
	}
	ps.VAD = vp

	return ps, nil
}

// buildLLM creates one model backend, wrapped in a circuit-breaking failover
// group when the entry names a fallback.
func buildLLM(reg *config.Registry, entry config.ProviderEntry) (llm.Provider, error) {
	primary, err := reg.CreateLLM(entry)
	if err != nil || entry.Fallback == nil {
		return primary, err
	}
	secondary, err := reg.CreateLLM(*entry.Fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback %q: %w", entry.Fallback.Name, err)
	}
	f := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{})
	f.AddFallback(entry.Fallback.Name, secondary)
	slog.Info("llm failover enabled", "primary", entry.Name, "fallback", entry.Fallback.Name)
	return f, nil
}

func buildSTT(reg *config.Registry, entry config.ProviderEntry) (stt.Provider, error) {
	primary, err := reg.CreateSTT(entry)
	if err != nil || entry.Fallback == nil {
		return primary, err
	}
	secondary, err := reg.CreateSTT(*entry.Fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback %q: %w", entry.Fallback.Name, err)
	}
	f := resilience.NewSTTFallback(primary, entry.Name, resilience.FallbackConfig{})
	f.AddFallback(entry.Fallback.Name, secondary)
	slog.Info("stt failover enabled", "primary", entry.Name, "fallback", entry.Fallback.Name)
	return f, nil
}

func buildTTS(reg *config.Registry, entry config.ProviderEntry) (tts.Provider, error) {
	primary, err := reg.CreateTTS(entry)
	if err != nil || entry.Fallback == nil {
		return primary, err
	}
	secondary, err := reg.CreateTTS(*entry.Fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback %q: %w", entry.Fallback.Name, err)
	}
	f := resilience.NewTTSFallback(primary, entry.Name, resilience.FallbackConfig{})
	f.AddFallback(entry.Fallback.Name, secondary)
	slog.Info("tts failover enabled", "primary", entry.Name, "fallback", entry.Fallback.Name)
	return f, nil
}

// speedLabel maps a numeric rate to the nearest Cartesia speed bucket.
func speedLabel(speed float64) string {
	switch {
	case speed <= 0.6:
		return "slowest"
	case speed <= 0.85:
		return "slow"
	case speed < 1.15:
		return "normal"
	case speed < 1.5:
		return "fast"
	default:
		return "fastest"
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optFloat extracts a numeric value from a provider Options map. YAML decodes
// numbers as int, float64, or string depending on how they are written.
func optFloat(opts map[string]any, key string) float64 {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
