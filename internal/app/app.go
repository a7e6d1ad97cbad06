// Package app wires all Voco engine subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP and WebSocket surface until the context
// ends, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithRegistry, WithMemory, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/Radix-Obsidian/Voco-ai/internal/config"
	"github.com/Radix-Obsidian/Voco-ai/internal/health"
	"github.com/Radix-Obsidian/Voco-ai/internal/ledger"
	"github.com/Radix-Obsidian/Voco-ai/internal/memory"
	"github.com/Radix-Obsidian/Voco-ai/internal/observe"
	"github.com/Radix-Obsidian/Voco-ai/internal/session"
	"github.com/Radix-Obsidian/Voco-ai/internal/tools"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/stt"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/tts"
	vadprovider "github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad"
)

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry.
type Providers struct {
	// Fast is the lightweight model used for routing and conversational
	// turns; Full is the heavyweight reasoning model used for coding turns.
	Fast llm.Provider
	Full llm.Provider

	STT stt.Provider
	TTS tts.Provider
	VAD vadprovider.Model
}

// App owns all subsystem lifetimes and serves the Voco voice pipeline.
type App struct {
	cfg        *config.Config
	providers  *Providers
	logger     *slog.Logger
	configPath string

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics    *observe.Metrics
	registry   *tools.Registry
	ledger     *ledger.Ledger
	memory     *memory.Store
	supervisor *session.Supervisor
	server     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger injects a logger instead of slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics injects a metrics set instead of building one from the global
// meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRegistry injects a tool registry instead of creating one from config.
func WithRegistry(r *tools.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithLedger injects an activity ledger instead of opening one from config.
func WithLedger(l *ledger.Ledger) Option {
	return func(a *App) { a.ledger = l }
}

// WithMemory injects a session memory store instead of opening the default
// JSONL file.
func WithMemory(s *memory.Store) Option {
	return func(a *App) { a.memory = s }
}

// WithConfigPath enables hot reload: the file at path is watched and safe
// changes (MCP server set) are applied to the running engine.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: telemetry setup, MCP server
// registration, ledger connection, memory store, session supervisor, and the
// HTTP surface.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Tool registry + MCP servers ───────────────────────────────────
	a.initTools(ctx)

	// ── 3. Activity ledger ───────────────────────────────────────────────
	a.initLedger(ctx)

	// ── 4. Session memory ────────────────────────────────────────────────
	if a.memory == nil {
		a.memory = memory.NewStore(cfg.MemoryPath())
	}

	// ── 5. Session supervisor ────────────────────────────────────────────
	if err := a.initSupervisor(); err != nil {
		return nil, fmt.Errorf("app: init supervisor: %w", err)
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	// ── 7. Config hot reload ─────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	return a, nil
}

// onConfigChange applies the hot-reloadable slice of a config edit. Provider
// and voice changes need fresh sessions to take effect, so they are only
// announced.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged {
		a.logger.Info("log level change requires a restart", "level", d.NewLogLevel)
	}
	if d.VoiceChanged {
		a.logger.Info("voice settings changed, new sessions pick them up")
	}
	for _, s := range d.ServersChanged {
		switch {
		case s.Removed:
			if err := a.registry.CloseServer(s.Name); err != nil {
				a.logger.Warn("closing removed tool server failed", "server", s.Name, "err", err)
			} else {
				a.logger.Info("tool server removed", "server", s.Name)
			}
		default: // added or reconfigured
			for _, cfg := range new.MCP.Servers {
				if cfg.Name != s.Name {
					continue
				}
				if err := a.registry.RegisterServer(context.Background(), tools.ServerConfig{
					Name:    cfg.Name,
					Command: cfg.Command,
					Env:     cfg.Env,
				}); err != nil {
					a.logger.Warn("tool server reload failed", "server", s.Name, "err", err)
				}
			}
		}
	}
}

// initTelemetry sets up the OTel SDK and the engine metric set. When metrics
// were injected, the global providers are assumed to be configured already.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(sctx)
	})

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initTools builds the tool registry and connects the configured MCP servers.
// Server failures are logged, not fatal: the engine degrades to its built-in
// tool set.
func (a *App) initTools(ctx context.Context) {
	if a.registry == nil {
		a.registry = tools.New(tools.WithLogger(a.logger))
	}
	a.registry.RegisterServers(ctx, mcpServerConfigs(a.cfg.MCP.Servers))
	a.closers = append(a.closers, a.registry.Close)
}

// initLedger connects the optional Postgres activity ledger. An unreachable
// database disables the ledger rather than failing startup.
func (a *App) initLedger(ctx context.Context) {
	if a.ledger == nil {
		a.ledger = ledger.Open(ctx, a.cfg.Ledger.PostgresDSN, a.logger)
	}
	a.closers = append(a.closers, func() error {
		a.ledger.Close()
		return nil
	})
}

func (a *App) initSupervisor() error {
	sv, err := session.NewSupervisor(session.SupervisorConfig{
		Config:   a.cfg,
		Fast:     a.providers.Fast,
		Full:     a.providers.Full,
		STT:      a.providers.STT,
		TTS:      a.providers.TTS,
		VADModel: a.providers.VAD,
		Registry: a.registry,
		Ledger:   a.ledger,
		Memory:   a.memory,
		Metrics:  a.metrics,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.supervisor = sv
	return nil
}

// initHTTP assembles the server: the session WebSocket, the sandbox preview
// page, Prometheus metrics, and a health probe.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	health.New(
		health.Checker{Name: "sessions_dir", Check: func(context.Context) error {
			return os.MkdirAll(a.cfg.SessionsDir(), 0o755)
		}},
		health.Checker{Name: "ledger", Check: func(ctx context.Context) error {
			return a.ledger.Ping(ctx)
		}},
	).Register(mux)
	mux.HandleFunc("GET /sandbox", a.handleSandbox)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/ws/voco-stream", a.supervisor)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler exposes the HTTP surface for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Sandbox returns the preview slot shared between sessions and /sandbox.
func (a *App) Sandbox() *session.Sandbox {
	return a.supervisor.Sandbox()
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleSandbox serves the latest MVP preview. The page is re-fetched on
// every tool update, so caching must stay off.
func (a *App) handleSandbox(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	html := a.supervisor.Sandbox().Get()
	if html == "" {
		html = sandboxPlaceholder
	}
	fmt.Fprint(w, html)
}

const sandboxPlaceholder = `<!DOCTYPE html>
<html><head><title>Voco Sandbox</title></head>
<body><p>No preview yet. Ask Voco to build something.</p></body></html>`

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run serves until the context is cancelled or the listener fails. The
// returned error is nil on a clean context cancellation.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	a.logger.Info("voco engine running",
		"addr", a.cfg.Server.ListenAddr,
		"mcp_servers", len(a.cfg.MCP.Servers),
		"ledger", a.ledger.Enabled(),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the listener, waits for in-flight sessions to close, and
// runs the closers in order. Honours the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// mcpServerConfigs converts config MCP entries to registry server configs.
func mcpServerConfigs(cfgs []config.MCPServerConfig) []tools.ServerConfig {
	out := make([]tools.ServerConfig, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, tools.ServerConfig{
			Name:    c.Name,
			Command: c.Command,
			Env:     c.Env,
		})
	}
	return out
}
