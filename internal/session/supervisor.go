package session

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/coder/websocket"

	"github.com/Radix-Obsidian/Voco-ai/internal/archive"
	"github.com/Radix-Obsidian/Voco-ai/internal/config"
	"github.com/Radix-Obsidian/Voco-ai/internal/graph"
	"github.com/Radix-Obsidian/Voco-ai/internal/graph/checkpoint"
	"github.com/Radix-Obsidian/Voco-ai/internal/ledger"
	"github.com/Radix-Obsidian/Voco-ai/internal/memory"
	"github.com/Radix-Obsidian/Voco-ai/internal/observe"
	"github.com/Radix-Obsidian/Voco-ai/internal/tools"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/stt"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/tts"
	vadprovider "github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad"
)

// StatusInvalidToken is the close code sent when the shared session token
// does not match.
const StatusInvalidToken websocket.StatusCode = 4001

// readLimit bounds one inbound frame. Screen captures are the largest
// legitimate payload.
const readLimit = 8 << 20

// SupervisorConfig holds all dependencies for a [Supervisor].
type SupervisorConfig struct {
	Config *config.Config

	Fast     llm.Provider
	Full     llm.Provider
	STT      stt.Provider
	TTS      tts.Provider
	VADModel vadprovider.Model
	Registry *tools.Registry

	Sandbox *Sandbox
	Ledger  *ledger.Ledger
	Memory  *memory.Store
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Supervisor accepts WebSocket connections on /ws/voco-stream and runs one
// Session per connection. Safe for concurrent use.
type Supervisor struct {
	cfg SupervisorConfig
}

// NewSupervisor validates the dependency set and returns a Supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	switch {
	case cfg.Config == nil:
		return nil, fmt.Errorf("session: supervisor requires a config")
	case cfg.Fast == nil || cfg.Full == nil:
		return nil, fmt.Errorf("session: supervisor requires both model providers")
	case cfg.STT == nil:
		return nil, fmt.Errorf("session: supervisor requires an STT provider")
	case cfg.TTS == nil:
		return nil, fmt.Errorf("session: supervisor requires a TTS provider")
	case cfg.VADModel == nil:
		return nil, fmt.Errorf("session: supervisor requires a VAD model")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("session: supervisor requires a tool registry")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Sandbox == nil {
		cfg.Sandbox = NewSandbox()
	}
	return &Supervisor{cfg: cfg}, nil
}

// Sandbox returns the preview slot shared with the HTTP surface.
func (sv *Supervisor) Sandbox() *Sandbox {
	return sv.cfg.Sandbox
}

// ServeHTTP upgrades the request and runs the session to completion.
func (sv *Supervisor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // local desktop client, origin varies
	})
	if err != nil {
		sv.cfg.Logger.Warn("websocket accept failed", "error", err)
		return
	}

	if token := sv.cfg.Config.Server.AuthToken; token != "" {
		if r.URL.Query().Get("token") != token {
			sv.cfg.Logger.Warn("session rejected: invalid token", "remote", r.RemoteAddr)
			_ = c.Close(StatusInvalidToken, "invalid session token")
			return
		}
	}
	c.SetReadLimit(readLimit)

	sessionID := "sess_" + shortID()
	sess, err := sv.buildSession(sessionID, NewWSConn(c))
	if err != nil {
		sv.cfg.Logger.Error("session setup failed", "session_id", sessionID, "error", err)
		_ = c.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	if err := sess.Run(r.Context()); err != nil {
		sv.cfg.Logger.Error("session ended with error", "session_id", sessionID, "error", err)
		_ = c.Close(websocket.StatusInternalError, "internal session error")
		return
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
}

// buildSession assembles the per-connection stack: checkpoint store, graph,
// archive writer, and the session itself.
func (sv *Supervisor) buildSession(sessionID string, conn Conn) (*Session, error) {
	cfg := sv.cfg.Config

	sessionDir := filepath.Join(cfg.SessionsDir(), sessionID)
	ckpt, err := checkpoint.Open(sessionDir)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	system := sv.systemPrompt()
	g := graph.New(sv.cfg.Fast, sv.cfg.Full, sv.cfg.Registry, ckpt,
		graph.WithSystemPrompt(system),
		graph.WithTokenBudget(cfg.Session.TokenBudget),
		graph.WithLogger(sv.cfg.Logger.With("session_id", sessionID)),
	)

	sess, err := New(Config{
		SessionID:      sessionID,
		Conn:           conn,
		Graph:          g,
		STT:            sv.cfg.STT,
		TTS:            sv.cfg.TTS,
		VADModel:       sv.cfg.VADModel,
		Registry:       sv.cfg.Registry,
		Checkpoints:    ckpt,
		Archive:        archive.NewWriter(sessionDir),
		Memory:         sv.cfg.Memory,
		Ledger:         sv.cfg.Ledger,
		Sandbox:        sv.cfg.Sandbox,
		SandboxURL:     sandboxURLFor(cfg.Server.ListenAddr),
		Metrics:        sv.cfg.Metrics,
		Logger:         sv.cfg.Logger,
		SystemPrompt:   system,
		CheckpointKeep: cfg.Session.CheckpointKeep,
		BargeInFrames:  cfg.Session.BargeInFrames,
		SilenceFrames:  cfg.Session.SilenceFrames,
		AuthRebind:     sv.rebindCredentials,
	})
	if err != nil {
		_ = ckpt.Close()
		return nil, err
	}
	return sess, nil
}

// rebindCredentials swaps client-synced credentials into the model providers
// that cache authenticated backends.
func (sv *Supervisor) rebindCredentials(token string) {
	for _, p := range []llm.Provider{sv.cfg.Fast, sv.cfg.Full} {
		r, ok := p.(llm.CredentialRebinder)
		if !ok {
			continue
		}
		if err := r.RebindCredentials(token); err != nil {
			sv.cfg.Logger.Warn("credential rebind failed", "model", p.Model(), "error", err)
		}
	}
}

// systemPrompt extends the base persona with recent session memory.
func (sv *Supervisor) systemPrompt() string {
	system := graph.DefaultSystemPrompt
	if sv.cfg.Memory == nil {
		return system
	}
	recs, err := sv.cfg.Memory.Recent(memory.PromptRecords)
	if err != nil {
		sv.cfg.Logger.Warn("session memory unavailable", "error", err)
		return system
	}
	if block := memory.PromptBlock(recs); block != "" {
		system += "\n\n" + block
	}
	return system
}

// sandboxURLFor derives the preview URL the model announces from the server
// listen address.
func sandboxURLFor(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://localhost:8000/sandbox"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%s/sandbox", host, port)
}
