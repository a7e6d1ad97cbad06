// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts and transcripts the graph
// sends, and to feed controlled assistant turns without a live backend.
// Turns are consumed in order; when exhausted, the last one repeats.
package mock

import (
	"context"
	"sync"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// InvokeCall records a single invocation of Invoke.
type InvokeCall struct {
	Ctx      context.Context
	System   string
	Messages []llm.Message
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// Turns is the sequence of assistant turns returned by successive Invoke
	// calls. When fewer turns than calls exist, the final turn repeats.
	Turns []*llm.AssistantTurn

	// InvokeErr, if non-nil, is returned by every Invoke.
	InvokeErr error

	// TokenCount is returned by CountTokens.
	TokenCount int

	// CountTokensErr, if non-nil, is returned by CountTokens.
	CountTokensErr error

	// ModelName is returned by Model. Defaults to "mock".
	ModelName string

	// InvokeCalls records every invocation of Invoke in order.
	InvokeCalls []InvokeCall

	// BoundTools records the argument of the most recent BindTools call.
	BoundTools []llm.ToolDefinition

	// BindToolsCallCount counts BindTools invocations.
	BindToolsCallCount int

	// RebindCalls records every key passed to RebindCredentials.
	RebindCalls []string

	// RebindErr, if non-nil, is returned by RebindCredentials.
	RebindErr error

	turnIdx int
}

// Invoke records the call and returns the next configured turn.
func (p *Provider) Invoke(ctx context.Context, system string, messages []llm.Message) (*llm.AssistantTurn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := make([]llm.Message, len(messages))
	copy(msgs, messages)
	p.InvokeCalls = append(p.InvokeCalls, InvokeCall{Ctx: ctx, System: system, Messages: msgs})

	if p.InvokeErr != nil {
		return nil, p.InvokeErr
	}
	if len(p.Turns) == 0 {
		return &llm.AssistantTurn{}, nil
	}
	turn := p.Turns[min(p.turnIdx, len(p.Turns)-1)]
	p.turnIdx++
	return turn, nil
}

// BindTools records the bound tool set.
func (p *Provider) BindTools(tools []llm.ToolDefinition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BoundTools = tools
	p.BindToolsCallCount++
}

// CountTokens returns TokenCount, CountTokensErr.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, p.CountTokensErr
}

// Model returns ModelName or "mock" when unset.
func (p *Provider) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelName == "" {
		return "mock"
	}
	return p.ModelName
}

// RebindCredentials records the key and returns RebindErr.
func (p *Provider) RebindCredentials(apiKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RebindCalls = append(p.RebindCalls, apiKey)
	return p.RebindErr
}

// Reset clears recorded calls and rewinds the turn sequence. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InvokeCalls = nil
	p.BoundTools = nil
	p.BindToolsCallCount = 0
	p.RebindCalls = nil
	p.turnIdx = 0
}

var (
	_ llm.Provider           = (*Provider)(nil)
	_ llm.CredentialRebinder = (*Provider)(nil)
)
