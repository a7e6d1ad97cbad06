// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/stt"
)

// TranscribeCall records a single invocation of TranscribeOnce.
type TranscribeCall struct {
	Ctx context.Context
	PCM []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by every TranscribeOnce call.
	Text string

	// Err, if non-nil, is returned by every TranscribeOnce call.
	Err error

	// Calls records every invocation in order.
	Calls []TranscribeCall
}

// TranscribeOnce records the call and returns Text, Err.
func (p *Provider) TranscribeOnce(ctx context.Context, pcm []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, PCM: cp})
	return p.Text, p.Err
}

// Reset clears recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ stt.Provider = (*Provider)(nil)
