// Package vad defines the frame-level speech detection interface the audio
// pipeline builds turn segmentation on.
//
// A Model wraps speech-detector weights loaded once at process start and
// shared read-only across sessions. Each Session carries the per-stream
// recurrent state; edge detection (onset, turn end) is layered on top by the
// streamer, so Sessions only report a raw per-frame speech probability.
//
// Models must be safe for concurrent NewSession calls. A single Session must
// not be shared across goroutines.
package vad

// Audio format constants for the detection frames.
const (
	// SampleRate is the only supported input rate, in Hz.
	SampleRate = 16000

	// FrameSamples is the window size every Session consumes: 512 samples,
	// 32 ms at 16 kHz.
	FrameSamples = 512

	// FrameBytes is FrameSamples as little-endian 16-bit PCM.
	FrameBytes = FrameSamples * 2
)

// Session is an active per-stream detector.
type Session interface {
	// Probability scores one FrameBytes-sized window of little-endian mono
	// 16-bit PCM and returns the speech probability in [0, 1]. It must not
	// block; an error is returned for a wrong-sized frame or an internal
	// model failure.
	Probability(frame []byte) (float64, error)

	// Reset clears the session's recurrent state without closing it. Called
	// between turns so a previous segment cannot bias the next one.
	Reset()

	// Close releases session resources. Safe to call more than once.
	Close() error
}

// Model is the factory for detection sessions, implemented by each backend.
type Model interface {
	NewSession() (Session, error)
}
