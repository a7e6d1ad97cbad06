// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The turn pipeline transcribes a whole buffered utterance at once after the
// detector signals turn end, so the abstraction is a single pre-recorded call
// rather than a streaming session. Implementations own their retry policy:
// transient upstream failures (5xx, network) are retried internally; client
// errors are returned immediately.
//
// Implementations must be safe for concurrent use across sessions.
package stt

import "context"

// Provider is the abstraction over any pre-recorded STT backend.
type Provider interface {
	// TranscribeOnce converts a complete utterance of little-endian mono
	// 16-bit PCM at 16 kHz into text. An empty string with a nil error means
	// the provider heard nothing usable.
	TranscribeOnce(ctx context.Context, pcm []byte) (string, error)
}
