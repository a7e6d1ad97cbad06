package resilience

import (
	"context"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// model backends. Each backend has its own circuit breaker; when the primary
// fails or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional model provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Invoke sends the prompt to the first healthy provider and returns its
// assistant turn. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Invoke(ctx context.Context, system string, messages []llm.Message) (*llm.AssistantTurn, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.AssistantTurn, error) {
		return p.Invoke(ctx, system, messages)
	})
}

// BindTools rebinds the tool catalogue on every backend, so a failover mid
// conversation still sees the same tools.
func (f *LLMFallback) BindTools(tools []llm.ToolDefinition) {
	for i := range f.group.entries {
		f.group.entries[i].value.BindTools(tools)
	}
}

// CountTokens delegates to the primary's tokenizer. Token estimates feed the
// budget heuristic, so cross-backend drift is acceptable and does not
// participate in failover.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return f.group.entries[0].value.CountTokens(messages)
}

// Model reports the primary's model identifier.
func (f *LLMFallback) Model() string {
	return f.group.entries[0].value.Model()
}

// RebindCredentials forwards refreshed credentials to every backend that
// caches an authenticated client, so a later failover does not resurrect a
// stale key. The first error is returned after all backends were tried.
func (f *LLMFallback) RebindCredentials(apiKey string) error {
	var firstErr error
	for i := range f.group.entries {
		r, ok := f.group.entries[i].value.(llm.CredentialRebinder)
		if !ok {
			continue
		}
		if err := r.RebindCredentials(apiKey); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
