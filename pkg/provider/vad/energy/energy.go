// Package energy implements vad.Model with an adaptive short-term energy
// detector.
//
// It tracks a slow-moving noise floor per session and maps the ratio of frame
// RMS to that floor through a logistic curve, yielding a probability that
// behaves like a neural detector's output for clean close-mic audio. It is the
// default backend when no external model is configured and the reference
// implementation for streamer tests.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad"
)

// Model creates energy-based detection sessions.
type Model struct {
	noiseFloorInit float64
	floorDecay     float64
	steepness      float64
}

// Option customises a Model.
type Option func(*Model)

// WithNoiseFloor sets the initial noise-floor RMS estimate.
func WithNoiseFloor(rms float64) Option {
	return func(m *Model) { m.noiseFloorInit = rms }
}

// WithFloorDecay sets the exponential smoothing factor applied to the noise
// floor on silent frames. Range (0, 1); closer to 1 adapts slower.
func WithFloorDecay(decay float64) Option {
	return func(m *Model) { m.floorDecay = decay }
}

// New returns a Model with sane defaults for 16 kHz close-mic speech.
func New(opts ...Option) *Model {
	m := &Model{
		noiseFloorInit: 150,
		floorDecay:     0.95,
		steepness:      1.6,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewSession implements vad.Model.
func (m *Model) NewSession() (vad.Session, error) {
	return &session{
		floor:      m.noiseFloorInit,
		floorInit:  m.noiseFloorInit,
		floorDecay: m.floorDecay,
		steepness:  m.steepness,
	}, nil
}

type session struct {
	mu         sync.Mutex
	floor      float64
	floorInit  float64
	floorDecay float64
	steepness  float64
	closed     bool
}

// Probability implements vad.Session.
func (s *session) Probability(frame []byte) (float64, error) {
	if len(frame) != vad.FrameBytes {
		return 0, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), vad.FrameBytes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("energy: session closed")
	}

	var sum float64
	for i := 0; i < len(frame); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(frame[i:])))
		sum += v * v
	}
	rms := math.Sqrt(sum / vad.FrameSamples)

	// Adapt the floor only on frames well below it so speech cannot raise it.
	if rms < s.floor*1.5 {
		s.floor = s.floorDecay*s.floor + (1-s.floorDecay)*rms
		if s.floor < 1 {
			s.floor = 1
		}
	}

	// Logistic mapping of the dB ratio over the floor; ~12 dB over the floor
	// maps to p ≈ 0.5.
	ratioDB := 20 * math.Log10((rms+1)/(s.floor+1))
	p := 1 / (1 + math.Exp(-s.steepness*(ratioDB-12)/6))
	return p, nil
}

// Reset implements vad.Session.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floor = s.floorInit
}

// Close implements vad.Session.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ vad.Model = (*Model)(nil)
var _ vad.Session = (*session)(nil)
