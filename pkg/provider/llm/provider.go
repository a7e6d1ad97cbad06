// Package llm defines the thin adapter interface the reasoning graph uses to
// talk to a language model.
//
// The capability set is deliberately small: one-shot Invoke returning an
// assistant turn with optional tool calls, a rebind-tools operation, and token
// counting for budget enforcement. Graph nodes depend on this interface, never
// on a concrete SDK client.
package llm

import "context"

// Provider is the model adapter used by the reasoning graph.
//
// Implementations must be safe for concurrent use; BindTools affects
// subsequent Invoke calls only.
type Provider interface {
	// Invoke sends the system prompt and message history to the model and
	// returns its next assistant turn.
	Invoke(ctx context.Context, system string, messages []Message) (*AssistantTurn, error)

	// BindTools replaces the tool definitions advertised on future Invoke
	// calls. Passing nil unbinds all tools.
	BindTools(tools []ToolDefinition)

	// CountTokens estimates the token footprint of the given messages for
	// this provider's model.
	CountTokens(messages []Message) (int, error)

	// Model reports the backing model identifier.
	Model() string
}

// CredentialRebinder is implemented by providers that cache an authenticated
// backend client. RebindCredentials discards the cached client so the next
// Invoke authenticates with the new key; the session calls it when the
// desktop client syncs fresh credentials mid-connection.
type CredentialRebinder interface {
	RebindCredentials(apiKey string) error
}
