// Package vad implements turn segmentation over a frame-level speech detector.
//
// The Streamer consumes arbitrary-sized PCM writes, re-frames them into the
// detector's 32 ms windows, and turns the per-window probabilities into two
// edge events: speech onset (used for barge-in) and turn end (sustained
// silence after speech). Callbacks fire synchronously on the calling
// goroutine and must not block.
package vad

import (
	"fmt"

	vadprovider "github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad"
)

// Default detection thresholds.
const (
	DefaultSpeechThreshold = 0.5
	DefaultBargeInFrames   = 2  // 64 ms of speech to trigger onset
	DefaultSilenceFrames   = 40 // 1.28 s of silence to end a turn
)

// Config holds the Streamer thresholds. Zero values select the defaults.
type Config struct {
	// SpeechThreshold is the probability at or above which a window counts
	// as speech.
	SpeechThreshold float64

	// BargeInFrames is the number of consecutive speech windows needed to
	// fire OnSpeechOnset.
	BargeInFrames int

	// SilenceFrames is the number of consecutive silent windows needed to
	// fire OnTurnEnd once speaking.
	SilenceFrames int

	// OnSpeechOnset fires once per speech run when speech is first sustained.
	OnSpeechOnset func()

	// OnTurnEnd fires once per speech run when silence is sustained.
	OnTurnEnd func()
}

// Streamer segments a PCM stream into turns. Not safe for concurrent use;
// the session inbound loop is its only caller.
type Streamer struct {
	cfg     Config
	session vadprovider.Session

	pending []byte

	consecutiveSpeech  int
	consecutiveSilence int
	isSpeaking         bool
	onsetFired         bool
}

// NewStreamer creates a Streamer over a fresh detection session of model.
func NewStreamer(model vadprovider.Model, cfg Config) (*Streamer, error) {
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	if cfg.BargeInFrames == 0 {
		cfg.BargeInFrames = DefaultBargeInFrames
	}
	if cfg.SilenceFrames == 0 {
		cfg.SilenceFrames = DefaultSilenceFrames
	}

	session, err := model.NewSession()
	if err != nil {
		return nil, fmt.Errorf("vad: new session: %w", err)
	}
	return &Streamer{cfg: cfg, session: session}, nil
}

// Feed consumes a PCM chunk of any size. Complete 32 ms windows are scored
// immediately; a trailing partial window is held until the next call.
func (s *Streamer) Feed(chunk []byte) error {
	s.pending = append(s.pending, chunk...)
	for len(s.pending) >= vadprovider.FrameBytes {
		window := s.pending[:vadprovider.FrameBytes]
		p, err := s.session.Probability(window)
		if err != nil {
			return fmt.Errorf("vad: score window: %w", err)
		}
		s.pending = s.pending[vadprovider.FrameBytes:]
		s.observe(p)
	}
	return nil
}

func (s *Streamer) observe(p float64) {
	if p >= s.cfg.SpeechThreshold {
		s.consecutiveSpeech++
		s.consecutiveSilence = 0
	} else {
		s.consecutiveSilence++
		s.consecutiveSpeech = 0
	}

	if !s.isSpeaking && s.consecutiveSpeech >= s.cfg.BargeInFrames {
		s.isSpeaking = true
		if !s.onsetFired {
			s.onsetFired = true
			if s.cfg.OnSpeechOnset != nil {
				s.cfg.OnSpeechOnset()
			}
		}
	}

	if s.isSpeaking && s.consecutiveSilence >= s.cfg.SilenceFrames {
		s.resetTurnState()
		if s.cfg.OnTurnEnd != nil {
			s.cfg.OnTurnEnd()
		}
	}
}

// Speaking reports whether the streamer currently considers the user speaking.
func (s *Streamer) Speaking() bool { return s.isSpeaking }

// Reset clears the window buffer, per-turn counters, and the detector's
// recurrent state. Called after TTS playback and on turn boundaries.
func (s *Streamer) Reset() {
	s.pending = nil
	s.resetTurnState()
	s.session.Reset()
}

func (s *Streamer) resetTurnState() {
	s.consecutiveSpeech = 0
	s.consecutiveSilence = 0
	s.isSpeaking = false
	s.onsetFired = false
}

// Close releases the underlying detection session.
func (s *Streamer) Close() error {
	return s.session.Close()
}
