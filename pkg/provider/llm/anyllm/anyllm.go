// Package anyllm implements llm.Provider on top of
// github.com/mozilla-ai/any-llm-go, a unified multi-provider completion
// interface covering Anthropic, OpenAI, Gemini, Ollama and others.
//
// Usage:
//
//	fast, err := anyllm.NewAnthropic("claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
//	full, err := anyllm.NewAnthropic("claude-sonnet-4-20250514", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// SupportedBackends lists the any-llm-go backends New accepts.
var SupportedBackends = []string{"anthropic", "openai", "gemini", "ollama"}

// Provider implements llm.Provider by wrapping an any-llm-go backend.
type Provider struct {
	providerName string
	model        string
	baseOpts     []anyllmlib.Option

	mu          sync.RWMutex
	backend     anyllmlib.Provider
	tools       []llm.ToolDefinition
	temperature float64
	maxTokens   int
}

// Option customises a Provider.
type Option func(*Provider)

// WithTemperature sets the sampling temperature sent on every completion.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// New creates a Provider backed by the named any-llm-go backend.
// providerName is one of: "anthropic", "openai", "gemini", "ollama".
func New(providerName, model string, opts []anyllmlib.Option, provOpts ...Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	p := &Provider{
		providerName: providerName,
		model:        model,
		baseOpts:     opts,
		backend:      backend,
	}
	for _, o := range provOpts {
		o(p)
	}
	return p, nil
}

// NewAnthropic creates a Provider backed by Anthropic.
// Without options, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", model, opts)
}

// NewOpenAI creates a Provider backed by OpenAI.
// Without options, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("openai", model, opts)
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic":
		return anthropic.New(opts...)
	case "openai":
		return anyllmoai.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: %s",
			providerName, strings.Join(SupportedBackends, ", "))
	}
}

// RebindCredentials implements llm.CredentialRebinder: it rebuilds the backend
// client with the new key so in-flight sessions pick up refreshed credentials
// on their next call.
func (p *Provider) RebindCredentials(apiKey string) error {
	opts := append(append([]anyllmlib.Option{}, p.baseOpts...), anyllmlib.WithAPIKey(apiKey))
	backend, err := createBackend(p.providerName, opts...)
	if err != nil {
		return fmt.Errorf("anyllm: rebind %q backend: %w", p.providerName, err)
	}
	p.mu.Lock()
	p.backend = backend
	p.mu.Unlock()
	return nil
}

// Invoke implements llm.Provider.
func (p *Provider) Invoke(ctx context.Context, system string, messages []llm.Message) (*llm.AssistantTurn, error) {
	params := p.buildParams(system, messages)

	p.mu.RLock()
	backend := p.backend
	p.mu.RUnlock()

	resp, err := backend.Completion(ctx, params)
	if err != nil {
		return nil, llm.ClassifyError(fmt.Errorf("anyllm: completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	choice := resp.Choices[0]
	turn := &llm.AssistantTurn{Content: choice.Message.ContentString()}
	if resp.Usage != nil {
		turn.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	for _, tc := range choice.Message.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return turn, nil
}

// BindTools implements llm.Provider.
func (p *Provider) BindTools(tools []llm.ToolDefinition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tools = tools
}

// CountTokens implements llm.Provider using a chars/4 estimate plus a small
// per-message overhead. Budget enforcement layers a real tokenizer on top
// where one is available for the model.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (len(m.FlattenParts()) + 3) / 4
		total += 4
	}
	return total, nil
}

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// buildParams converts the invoke arguments into anyllm CompletionParams.
func (p *Provider) buildParams(system string, messages []llm.Message) anyllmlib.CompletionParams {
	p.mu.RLock()
	tools := p.tools
	temperature := p.temperature
	maxTokens := p.maxTokens
	p.mu.RUnlock()

	var out []anyllmlib.Message
	if system != "" {
		out = append(out, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: system})
	}
	for _, m := range messages {
		out = append(out, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: out,
	}
	if temperature != 0 {
		t := temperature
		params.Temperature = &t
	}
	if maxTokens > 0 {
		mt := maxTokens
		params.MaxTokens = &mt
	}
	for _, td := range tools {
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}
	return params
}

func convertMessage(m llm.Message) anyllmlib.Message {
	msg := anyllmlib.Message{
		Role:       m.Role,
		Content:    m.FlattenParts(),
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, anyllmlib.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: anyllmlib.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return msg
}

var (
	_ llm.Provider           = (*Provider)(nil)
	_ llm.CredentialRebinder = (*Provider)(nil)
)
