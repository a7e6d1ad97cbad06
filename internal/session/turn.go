package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Radix-Obsidian/Voco-ai/internal/graph"
	"github.com/Radix-Obsidian/Voco-ai/internal/observe"
	"github.com/Radix-Obsidian/Voco-ai/internal/protocol"
	"github.com/Radix-Obsidian/Voco-ai/internal/tools"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// runTurn executes one user turn: STT (unless textOverride is given), the
// reasoning graph with its tool and approval loops, then TTS of the answer.
// Failures are surfaced to the client as error envelopes; the session stays
// open.
func (s *Session) runTurn(ctx context.Context, textOverride string) {
	s.busy = true
	defer func() { s.busy = false }()

	started := time.Now()
	s.bargedIn = false

	ended := protocol.NewControl(protocol.ActionTurnEnded)
	ended.TurnCount = s.turns + 1
	s.sendJSON(ctx, ended)

	pcm := s.audioBuf
	s.audioBuf = nil

	text := textOverride
	if text == "" {
		if len(pcm) < minTurnBytes {
			return
		}
		var ok bool
		text, ok = s.transcribe(ctx, pcm)
		if !ok {
			return
		}
	}
	text = strings.TrimSpace(text)
	if len(text) < 2 {
		return
	}
	s.sendJSON(ctx, protocol.NewTranscript(text))

	s.turns++
	s.state.Append(llm.Message{Role: llm.RoleHuman, Content: text})
	s.sendJSON(ctx, protocol.NewLedgerUpdate(string(graph.NodeContextClassifier), "Understanding request", "running"))
	s.ledgerSvc.RecordNode(ctx, s.id, s.turns, string(graph.NodeContextClassifier), text)

	if err := s.completeTurn(ctx); err != nil {
		s.reportTurnError(ctx, err)
		return
	}

	s.metrics.TurnDuration.Record(ctx, time.Since(started).Seconds())
	s.metrics.RecordTurn(ctx, s.state.RoutedModel)

	if s.archive != nil {
		if err := s.archive.WriteTurn(s.state.TurnCount, s.systemPrompt, s.state.Messages); err != nil {
			s.logger.Warn("turn archive write failed", "error", err)
		}
	}
	s.ledgerSvc.SyncCounters(ctx, s.id, s.turns, s.rpcCount, s.queue.TimeoutCount())

	if q := s.queuedText; q != "" {
		s.queuedText = ""
		s.runTurn(ctx, q)
	}
}

// transcribe converts the buffered utterance to text.
func (s *Session) transcribe(ctx context.Context, pcm []byte) (string, bool) {
	t0 := time.Now()
	text, err := s.stt.TranscribeOnce(ctx, pcm)
	s.metrics.STTDuration.Record(ctx, time.Since(t0).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "stt", "transcribe")
		s.logger.Error("transcription failed", "error", err)
		s.sendJSON(ctx, protocol.NewError(protocol.ErrSTTFailed,
			"I couldn't hear that clearly. Please try again.", s.id, true))
		return "", false
	}
	return text, true
}

// completeTurn drives the graph until it neither interrupts nor leaves a
// pending tool action, then speaks the final answer.
func (s *Session) completeTurn(ctx context.Context) error {
	res, err := s.invokeGraph(ctx)
	if err != nil {
		return err
	}

	for hop := 0; hop < maxToolHops; hop++ {
		if res.Interrupt != "" {
			res, err = s.collectDecisions(ctx, res.Interrupt)
			if err != nil {
				return err
			}
			continue
		}
		if s.state.PendingToolAction == nil {
			break
		}

		call := *s.state.PendingToolAction
		s.state.PendingToolAction = nil
		s.sendJSON(ctx, protocol.NewLedgerUpdate(string(graph.NodeToolDispatch), call.Name, "running"))
		s.ledgerSvc.RecordNode(ctx, s.id, s.turns, string(graph.NodeToolDispatch), call.Name)

		if s.registry.Classify(call.Name) == tools.ClassLocalRPC {
			s.dispatchBackground(ctx, call)
		} else {
			s.state.Append(s.executeInline(ctx, call))
		}

		res, err = s.invokeGraph(ctx)
		if err != nil {
			return err
		}
	}

	s.sendJSON(ctx, protocol.NewLedgerUpdate(string(graph.NodeEnd), "Responding", "done"))
	return s.speak(ctx)
}

func (s *Session) invokeGraph(ctx context.Context) (*graph.Result, error) {
	t0 := time.Now()
	res, err := s.graph.Invoke(ctx, s.state)
	s.metrics.GraphDuration.Record(ctx, time.Since(t0).Seconds())
	if err != nil {
		return nil, err
	}
	s.state = res.State
	return res, nil
}

// speak synthesises the last assistant message and streams it to the client.
// Inbound frames keep flowing during playback so the detector can catch a
// barge-in; the user speaking cancels synthesis and halts client playback.
func (s *Session) speak(ctx context.Context) error {
	text := strings.TrimSpace(s.state.LastAssistantText())
	if text == "" {
		return nil
	}

	ttsCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t0 := time.Now()
	chunks, errs, err := s.tts.SynthesizeStream(ttsCtx, text)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "tts", "start")
		s.sendJSON(ctx, protocol.NewError(protocol.ErrTTSFailed,
			"Speech synthesis is unavailable right now.", s.id, true))
		return nil
	}

	s.sendJSON(ctx, protocol.NewControl(protocol.ActionTTSStart))
	s.ttsActive = true
	s.bargedIn = false

stream:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break stream
			}
			if err := s.conn.SendBinary(ctx, chunk); err != nil {
				s.logger.Warn("audio send failed", "error", err)
				cancel()
				break stream
			}

		case f, ok := <-s.inbox:
			if !ok {
				cancel()
				s.ttsActive = false
				return ErrConnectionClosed
			}
			s.handleFrame(ctx, f)
			if s.bargedIn {
				cancel()
			}

		case d := <-s.jobDone:
			s.applyJobResult(ctx, d)

		case <-ctx.Done():
			s.ttsActive = false
			return ctx.Err()
		}
	}
	s.ttsActive = false

	var synthErr error
	for e := range errs {
		synthErr = e
	}
	s.metrics.TTSDuration.Record(ctx, time.Since(t0).Seconds())

	if s.bargedIn {
		// The user is mid-sentence: no grace window, no detector reset.
		return nil
	}
	s.sendJSON(ctx, protocol.NewControl(protocol.ActionTTSEnd))
	s.graceUntil = time.Now().Add(ttsGrace)
	s.streamer.Reset()
	s.audioBuf = nil

	if synthErr != nil && !errors.Is(synthErr, context.Canceled) {
		s.metrics.RecordProviderError(ctx, "tts", "stream")
		s.sendJSON(ctx, protocol.NewError(protocol.ErrTTSFailed,
			"Speech synthesis failed mid-answer.", s.id, true))
	}
	return nil
}

// reportTurnError maps a turn failure to an error envelope and clears the
// client's visual ledger.
func (s *Session) reportTurnError(ctx context.Context, err error) {
	s.logger.Error("turn failed", "error", err)
	s.sendJSON(ctx, protocol.NewLedgerClear())

	switch {
	case errors.Is(err, llm.ErrOverloaded):
		s.sendJSON(ctx, protocol.NewError(protocol.ErrModelOverloaded,
			"The model is overloaded. Please try again in a moment.", s.id, true))
	case errors.Is(err, llm.ErrAuth):
		s.sendJSON(ctx, protocol.NewError(protocol.ErrAuthExpired,
			"Your credentials were rejected. Please sign in again.", s.id, false))
	case errors.Is(err, ErrConnectionClosed), errors.Is(err, context.Canceled):
		// Nothing to tell a client that is gone.
	default:
		s.sendJSON(ctx, protocol.NewError(protocol.ErrGraphFailed,
			"Something went wrong processing that request.", s.id, true))
	}
}

// sendJSON sends v and logs instead of failing: a broken socket surfaces
// through the receive pump, not through individual sends.
func (s *Session) sendJSON(ctx context.Context, v any) {
	if err := s.conn.SendJSON(ctx, v); err != nil {
		s.logger.Warn("outbound send failed", "error", err)
	}
}

// correlationID returns the trace id attached to outgoing RPCs.
func (s *Session) correlationID(ctx context.Context) string {
	return observe.CorrelationID(ctx)
}
