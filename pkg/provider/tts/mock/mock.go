// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of SynthesizeStream.
type SynthesizeCall struct {
	Ctx  context.Context
	Text string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the sequence of PCM chunks emitted on the audio channel.
	Chunks [][]byte

	// ChunkDelay, when non-zero, is slept between chunk emissions so tests
	// can exercise barge-in while synthesis is "playing".
	ChunkDelay time.Duration

	// StreamErr, if non-nil, is emitted on the error channel after Chunks.
	StreamErr error

	// StartErr, if non-nil, is returned from SynthesizeStream directly.
	StartErr error

	// Calls records every invocation in order.
	Calls []SynthesizeCall
}

// SynthesizeStream records the call and plays back the configured chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text string) (<-chan []byte, <-chan error, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Text: text})
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	streamErr := p.StreamErr
	delay := p.ChunkDelay
	startErr := p.StartErr
	p.mu.Unlock()

	if startErr != nil {
		return nil, nil, startErr
	}

	audio := make(chan []byte, len(chunks))
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(audio)
		for _, c := range chunks {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case audio <- c:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			errs <- streamErr
		}
	}()
	return audio, errs, nil
}

// Reset clears recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ tts.Provider = (*Provider)(nil)
