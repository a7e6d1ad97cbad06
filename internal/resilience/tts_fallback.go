package resilience

import (
	"context"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// synthesis backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SynthesizeStream starts synthesis against the first healthy provider. Only
// the initial stream setup is covered by failover; mid-stream errors surface
// on the returned error channel and are the caller's responsibility.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text string) (<-chan []byte, <-chan error, error) {
	type stream struct {
		audio <-chan []byte
		errs  <-chan error
	}
	s, err := ExecuteWithResult(f.group, func(p tts.Provider) (stream, error) {
		audio, errs, err := p.SynthesizeStream(ctx, text)
		return stream{audio: audio, errs: errs}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return s.audio, s.errs, nil
}
