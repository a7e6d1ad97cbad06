// Package mock provides test doubles for the vad package interfaces.
//
// Use Session to script per-frame probabilities and inspect the frames that
// were submitted. Probabilities are consumed in order; when exhausted, the
// last value repeats (0 when none were configured).
package mock

import (
	"sync"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad"
)

// Model is a mock implementation of vad.Model.
type Model struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a fresh default Session is
	// returned.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCount is the number of NewSession calls.
	NewSessionCount int
}

// NewSession records the call and returns Session, NewSessionErr.
func (m *Model) NewSession() (vad.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NewSessionCount++
	if m.NewSessionErr != nil {
		return nil, m.NewSessionErr
	}
	if m.Session != nil {
		return m.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Model = (*Model)(nil)

// Session is a mock implementation of vad.Session.
type Session struct {
	mu sync.Mutex

	// Probabilities is the sequence returned by successive Probability calls.
	Probabilities []float64

	// ProbabilityErr, if non-nil, is returned by every Probability call.
	ProbabilityErr error

	// Frames records a copy of every frame passed to Probability.
	Frames [][]byte

	// ResetCount is the number of times Reset was called.
	ResetCount int

	// CloseCount is the number of times Close was called.
	CloseCount int

	idx int
}

// Probability records the frame and returns the next scripted probability.
func (s *Session) Probability(frame []byte) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)
	if s.ProbabilityErr != nil {
		return 0, s.ProbabilityErr
	}
	if len(s.Probabilities) == 0 {
		return 0, nil
	}
	p := s.Probabilities[min(s.idx, len(s.Probabilities)-1)]
	s.idx++
	return p, nil
}

// Reset increments ResetCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close increments CloseCount.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

// ResetCalls clears recorded state and rewinds the probability sequence.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = nil
	s.ResetCount = 0
	s.CloseCount = 0
	s.idx = 0
}

var _ vad.Session = (*Session)(nil)
