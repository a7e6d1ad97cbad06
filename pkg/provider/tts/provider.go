// Package tts defines the Provider interface for Text-to-Speech backends.
//
// The pipeline synthesises one assistant reply at a time and streams the
// resulting PCM to the client as it arrives, so the abstraction is a single
// text in, chunk stream out call. Barge-in support relies on the stream
// honouring context cancellation promptly.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream starts synthesis of text and returns a channel emitting
	// raw little-endian mono 16-bit PCM chunks at 16 kHz, plus an error channel.
	//
	// The audio channel is closed when synthesis completes, fails, or ctx is
	// cancelled. The error channel is buffered, receives at most one error,
	// and is closed after the audio channel; a drained, empty error channel
	// means synthesis finished cleanly. The caller must drain both.
	//
	// A non-nil error return means the stream could not be started at all.
	SynthesizeStream(ctx context.Context, text string) (<-chan []byte, <-chan error, error)
}
