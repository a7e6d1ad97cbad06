package resilience

import (
	"context"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// transcription backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// TranscribeOnce transcribes the utterance against the first healthy provider.
// If the primary fails, subsequent fallbacks are tried with the same buffer.
func (f *STTFallback) TranscribeOnce(ctx context.Context, pcm []byte) (string, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		return p.TranscribeOnce(ctx, pcm)
	})
}
