// Package session owns one WebSocket connection end to end: the inbound
// demultiplexer, the VAD-driven turn pipeline, Instant-ACK background tool
// dispatch, the human-in-the-loop approval waits, and the TTS phase with
// barge-in.
//
// Each session runs as a single event loop fed by a receive pump goroutine,
// so all turn state is owned by one goroutine and needs no locking. The only
// concurrent writers are background jobs, which report back through a channel
// the loop drains.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Radix-Obsidian/Voco-ai/internal/archive"
	"github.com/Radix-Obsidian/Voco-ai/internal/config"
	"github.com/Radix-Obsidian/Voco-ai/internal/graph"
	"github.com/Radix-Obsidian/Voco-ai/internal/graph/checkpoint"
	"github.com/Radix-Obsidian/Voco-ai/internal/jobs"
	"github.com/Radix-Obsidian/Voco-ai/internal/ledger"
	"github.com/Radix-Obsidian/Voco-ai/internal/memory"
	"github.com/Radix-Obsidian/Voco-ai/internal/observe"
	"github.com/Radix-Obsidian/Voco-ai/internal/protocol"
	"github.com/Radix-Obsidian/Voco-ai/internal/rpc"
	"github.com/Radix-Obsidian/Voco-ai/internal/tools"
	"github.com/Radix-Obsidian/Voco-ai/internal/vad"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/stt"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/tts"
	vadprovider "github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad"
)

const (
	// minTurnBytes is the smallest audio buffer worth transcribing: 0.2 s of
	// 16 kHz 16-bit mono PCM.
	minTurnBytes = 6400

	// decisionTimeout bounds a human-in-the-loop approval wait.
	decisionTimeout = 120 * time.Second

	// screenWait and scanWait bound the inline request/reply exchanges.
	screenWait = 10 * time.Second
	scanWait   = 30 * time.Second

	// ttsGrace is how long audio frames are dropped after playback ends, so
	// speaker echo cannot start a phantom turn.
	ttsGrace = 500 * time.Millisecond

	// keepaliveInterval paces liveness pings on an idle connection.
	keepaliveInterval = 30 * time.Second

	// maxToolHops caps graph re-invocations within one user turn.
	maxToolHops = 8

	// bgResultLimit bounds a background job result in the transcript.
	bgResultLimit = 2000

	// screenFrameLimit is how many recent frames an analyze_screen result
	// attaches.
	screenFrameLimit = 5
)

// ErrConnectionClosed is returned by in-band waits when the client goes away
// mid-exchange.
var ErrConnectionClosed = errors.New("session: connection closed")

// Grapher is the slice of the reasoning graph the session drives.
type Grapher interface {
	Invoke(ctx context.Context, state *graph.TurnState) (*graph.Result, error)
	Resume(ctx context.Context, proposals, commands []graph.Decision) (*graph.Result, error)
	Checkpoint(ctx context.Context, state *graph.TurnState)
}

var _ Grapher = (*graph.Graph)(nil)

// CheckpointStore is the slice of the checkpoint store the session tears
// down. The graph owns persistence during the session.
type CheckpointStore interface {
	Prune(ctx context.Context, keep int) error
	Close() error
}

var _ CheckpointStore = (*checkpoint.Store)(nil)

// Config holds all dependencies for a [Session].
type Config struct {
	SessionID string
	Conn      Conn
	Graph     Grapher

	STT      stt.Provider
	TTS      tts.Provider
	VADModel vadprovider.Model
	Registry *tools.Registry

	// Checkpoints, Archive, Memory, and Ledger are optional; a nil value
	// disables that concern.
	Checkpoints CheckpointStore
	Archive     *archive.Writer
	Memory      *memory.Store
	Ledger      *ledger.Ledger

	Sandbox    *Sandbox
	SandboxURL string

	Metrics *observe.Metrics
	Logger  *slog.Logger

	SystemPrompt   string
	ProjectPath    string
	CheckpointKeep int

	// DecisionTimeout bounds one approval wait. Defaults to 120 s; on expiry
	// the review resumes with no decisions and rejects everything pending.
	DecisionTimeout time.Duration

	// RPCTimeout bounds one client RPC round trip. Defaults to 30 s.
	RPCTimeout time.Duration

	SpeechThreshold float64
	BargeInFrames   int
	SilenceFrames   int

	// AuthRebind, when set, receives the access token from every auth_sync
	// so cached LLM clients re-bind to the fresh credentials.
	AuthRebind func(token string)
}

// jobResult is a background job completion handed back to the session loop.
type jobResult struct {
	jobID  string
	tool   string
	result string
}

// Session is one live client connection.
type Session struct {
	id          string
	conn        Conn
	graph       Grapher
	checkpoints CheckpointStore

	stt      stt.Provider
	tts      tts.Provider
	streamer *vad.Streamer
	registry *tools.Registry

	pending *rpc.Pending
	queue   *jobs.Queue

	sandbox    *Sandbox
	sandboxURL string

	archive   *archive.Writer
	memory    *memory.Store
	ledgerSvc *ledger.Ledger
	metrics   *observe.Metrics
	logger    *slog.Logger

	systemPrompt   string
	checkpointKeep int
	decisionWait   time.Duration
	rpcTimeout     time.Duration

	state *graph.TurnState

	inbox   chan Frame
	pumpErr error
	jobDone chan jobResult

	// awaitingReview defers job results during an approval wait so a
	// completion cannot overwrite the interrupt checkpoint before resume,
	// and buffers a decision arriving while the announcement still plays.
	awaitingReview   bool
	deferredJobs     []jobResult
	bufferedDecision *protocol.Inbound

	// bgCtx outlives the turn in progress; it is only cancelled at teardown
	// so background jobs survive turn boundaries.
	bgCtx    context.Context
	bgCancel context.CancelFunc

	audioBuf    []byte
	busy        bool
	ttsActive   bool
	bargedIn    bool
	turnPending bool
	graceUntil  time.Time
	queuedText  string

	turns     int
	rpcCount  int
	startedAt time.Time

	auth       authState
	authRebind func(token string)
}

// authState is the credential set most recently synced by the client.
type authState struct {
	uid          string
	token        string
	refreshToken string
}

// New creates a Session from cfg. The connection is not read until Run.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.Conn == nil:
		return nil, fmt.Errorf("session: Conn is required")
	case cfg.Graph == nil:
		return nil, fmt.Errorf("session: Graph is required")
	case cfg.STT == nil:
		return nil, fmt.Errorf("session: STT provider is required")
	case cfg.TTS == nil:
		return nil, fmt.Errorf("session: TTS provider is required")
	case cfg.VADModel == nil:
		return nil, fmt.Errorf("session: VAD model is required")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("session: tool registry is required")
	}

	if cfg.SessionID == "" {
		cfg.SessionID = "sess_" + shortID()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Ledger == nil {
		cfg.Ledger = &ledger.Ledger{}
	}
	if cfg.Sandbox == nil {
		cfg.Sandbox = NewSandbox()
	}
	if cfg.SandboxURL == "" {
		cfg.SandboxURL = "http://localhost:8000/sandbox"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = graph.DefaultSystemPrompt
	}
	if cfg.CheckpointKeep <= 0 {
		cfg.CheckpointKeep = checkpoint.DefaultKeep
	}
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = decisionTimeout
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = rpc.DefaultTimeout
	}

	logger := cfg.Logger.With("session_id", cfg.SessionID)

	s := &Session{
		id:             cfg.SessionID,
		conn:           cfg.Conn,
		graph:          cfg.Graph,
		checkpoints:    cfg.Checkpoints,
		stt:            cfg.STT,
		tts:            cfg.TTS,
		registry:       cfg.Registry,
		pending:        rpc.NewPending(rpc.WithLogger(logger)),
		queue:          jobs.NewQueue(jobs.WithLogger(logger)),
		sandbox:        cfg.Sandbox,
		sandboxURL:     cfg.SandboxURL,
		archive:        cfg.Archive,
		memory:         cfg.Memory,
		ledgerSvc:      cfg.Ledger,
		metrics:        cfg.Metrics,
		logger:         logger,
		systemPrompt:   cfg.SystemPrompt,
		checkpointKeep: cfg.CheckpointKeep,
		decisionWait:   cfg.DecisionTimeout,
		rpcTimeout:     cfg.RPCTimeout,
		authRebind:     cfg.AuthRebind,
		state:          &graph.TurnState{ProjectPath: cfg.ProjectPath},
		inbox:          make(chan Frame, 64),
		jobDone:        make(chan jobResult, 32),
		startedAt:      time.Now().UTC(),
	}

	streamer, err := vad.NewStreamer(cfg.VADModel, vad.Config{
		SpeechThreshold: cfg.SpeechThreshold,
		BargeInFrames:   cfg.BargeInFrames,
		SilenceFrames:   cfg.SilenceFrames,
		OnSpeechOnset:   s.onSpeechOnset,
		OnTurnEnd:       s.onTurnEnd,
	})
	if err != nil {
		return nil, err
	}
	s.streamer = streamer
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Run drives the session until the client disconnects or ctx ends. It always
// tears down fully before returning.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	s.pending.StartSweeper(sweepCtx)

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.teardown(sweepCancel)

	if err := s.conn.SendJSON(ctx, protocol.NewSessionInit(s.id)); err != nil {
		return fmt.Errorf("session: send session_init: %w", err)
	}
	s.ledgerSvc.TouchSession(ctx, s.id)
	s.logger.Info("session started")

	go s.pump(ctx)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case f, ok := <-s.inbox:
			if !ok {
				if s.pumpErr != nil && !isNormalClose(s.pumpErr) && ctx.Err() == nil {
					return fmt.Errorf("session: receive: %w", s.pumpErr)
				}
				return nil
			}
			s.handleFrame(ctx, f)

		case d := <-s.jobDone:
			s.applyJobResult(ctx, d)

		case <-keepalive.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.conn.Ping(pingCtx)
			pingCancel()
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("session: keepalive: %w", err)
			}
		}
	}
}

// pump reads frames off the connection and feeds the session loop. It closes
// the inbox when the connection dies; the loop treats that as disconnect.
func (s *Session) pump(ctx context.Context) {
	defer close(s.inbox)
	for {
		f, err := s.conn.Receive(ctx)
		if err != nil {
			s.pumpErr = err
			return
		}
		select {
		case s.inbox <- f:
		case <-ctx.Done():
			return
		}
	}
}

// ─── inbound demux ───

func (s *Session) handleFrame(ctx context.Context, f Frame) {
	if f.Binary {
		s.handleAudio(ctx, f.Data)
		return
	}
	in, err := protocol.Parse(f.Data)
	if err != nil {
		s.logger.Warn("unparseable client frame dropped", "error", err)
		return
	}
	s.handleMessage(ctx, in)
}

// handleAudio buffers turn audio and feeds the detector. While TTS plays the
// detector only watches for barge-in; during the post-TTS grace window frames
// are dropped entirely.
func (s *Session) handleAudio(ctx context.Context, pcm []byte) {
	if s.ttsActive {
		if err := s.streamer.Feed(pcm); err != nil {
			s.logger.Warn("vad feed failed during playback", "error", err)
		}
		return
	}
	if time.Now().Before(s.graceUntil) {
		return
	}

	s.audioBuf = append(s.audioBuf, pcm...)
	if err := s.streamer.Feed(pcm); err != nil {
		s.logger.Warn("vad feed failed", "error", err)
		return
	}
	if s.turnPending {
		s.turnPending = false
		if !s.busy {
			s.runTurn(ctx, "")
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, in *protocol.Inbound) {
	switch in.Kind {
	case protocol.KindTextInput:
		if s.busy {
			s.queuedText = in.TextInput.Text
			return
		}
		s.runTurn(ctx, in.TextInput.Text)

	case protocol.KindRPCResult:
		if !s.pending.Resolve(in.RPCResult.ID, in.RPCResult) {
			s.metrics.UnknownReplies.Add(ctx, 1)
		}

	case protocol.KindAuthSync:
		s.auth = authState{
			uid:          in.AuthSync.UID,
			token:        in.AuthSync.Token,
			refreshToken: in.AuthSync.RefreshToken,
		}
		if s.authRebind != nil && s.auth.token != "" {
			s.authRebind(s.auth.token)
		}
		s.logger.Info("credentials refreshed", "uid", s.auth.uid)

	case protocol.KindUpdateEnv:
		s.applyEnv(in.UpdateEnv.Env)

	case protocol.KindProposalDecision, protocol.KindCommandDecision:
		if s.awaitingReview {
			// The announcement is still playing; the approval wait picks
			// this up as soon as it starts.
			s.bufferedDecision = in
			return
		}
		// A decision with no suspended review finds nothing pending.
		s.logger.Debug("decision outside an approval wait dropped", "kind", in.Kind)

	case protocol.KindScreenFrames, protocol.KindScanSecurityResult:
		s.logger.Debug("unsolicited inline reply dropped", "kind", in.Kind)
	}
}

// applyEnv merges allow-listed keys into the process environment.
func (s *Session) applyEnv(env map[string]string) {
	for k, v := range env {
		if !config.IsAllowedEnvKey(k) {
			s.logger.Warn("env key not in allow-list, skipped", "key", k)
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			s.logger.Warn("setenv failed", "key", k, "error", err)
		}
	}
}

// ─── VAD callbacks (fired synchronously from Feed) ───

// onSpeechOnset fires when sustained speech begins. During playback that is a
// barge-in: halt the client's audio and flag the state so the next graph run
// knows the last answer was cut off.
func (s *Session) onSpeechOnset() {
	if !s.ttsActive {
		return
	}
	s.ttsActive = false
	s.bargedIn = true
	s.state.BargeInDetected = true
	s.metrics.BargeIns.Add(s.bgCtx, 1)
	s.logger.Info("barge-in detected, halting playback")
	if err := s.conn.SendJSON(s.bgCtx, protocol.NewControl(protocol.ActionHaltAudioPlayback)); err != nil {
		s.logger.Warn("halt_audio_playback send failed", "error", err)
	}
}

func (s *Session) onTurnEnd() {
	s.turnPending = true
}

// ─── teardown ───

// teardown runs the shutdown sequence: stop the sweeper, cancel background
// jobs, sync the ledger, prune and close the checkpoint store, record the
// session memory, and log the session counters.
func (s *Session) teardown(sweepCancel context.CancelFunc) {
	sweepCancel()
	s.bgCancel()
	s.queue.CancelAll()
	s.queue.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.ledgerSvc.SyncCounters(ctx, s.id, s.turns, s.rpcCount, s.queue.TimeoutCount())

	if s.memory != nil {
		rec := memory.Record{
			SessionID:   s.id,
			StartedAt:   s.startedAt,
			EndedAt:     time.Now().UTC(),
			Turns:       s.turns,
			ProjectPath: s.state.ProjectPath,
			Summary:     protocol.Truncate(s.state.LastAssistantText(), 200),
		}
		if err := s.memory.Append(rec); err != nil {
			s.logger.Warn("session memory append failed", "error", err)
		}
	}

	if s.checkpoints != nil {
		if err := s.checkpoints.Prune(ctx, s.checkpointKeep); err != nil {
			s.logger.Warn("checkpoint prune failed", "error", err)
		}
		if err := s.checkpoints.Close(); err != nil {
			s.logger.Warn("checkpoint close failed", "error", err)
		}
	}
	if err := s.streamer.Close(); err != nil {
		s.logger.Warn("vad close failed", "error", err)
	}

	s.metrics.ActiveSessions.Add(ctx, -1)
	s.logger.Info("session closed",
		"turns", s.turns,
		"rpc_calls", s.rpcCount,
		"rpc_timeouts", s.queue.TimeoutCount(),
		"unknown_replies", s.pending.UnknownCount(),
	)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
