package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message roles. These match the wire roles of OpenAI-compatible chat APIs.
const (
	RoleHuman     = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Message is one entry of a conversation transcript.
//
// Content carries plain text. Parts, when non-empty, carries a multimodal
// payload (screen frames attached to a tool result); providers that cannot
// transport images flatten Parts into text.
type Message struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// ContentPart is one piece of a multimodal message body.
type ContentPart struct {
	Type      string `json:"type"` // "text" or "image"
	Text      string `json:"text,omitempty"`
	ImageB64  string `json:"image_b64,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// FlattenParts renders a multimodal body as plain text for providers without
// vision transport. Images become a short placeholder so the model at least
// knows frames were captured.
func (m Message) FlattenParts() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		switch p.Type {
		case "text":
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		case "image":
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[screen frame attached: %s, %d bytes base64]", p.MediaType, len(p.ImageB64))
		}
	}
	return b.String()
}

// ToolCall is the model's request to invoke a named tool. Arguments is the
// raw JSON object string as produced by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Args decodes the call's JSON arguments into a map. An empty Arguments
// string decodes to an empty map.
func (tc ToolCall) Args() (map[string]any, error) {
	if strings.TrimSpace(tc.Arguments) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("llm: decode arguments of %s: %w", tc.Name, err)
	}
	return args, nil
}

// ToolDefinition describes one callable tool advertised to the model.
// Parameters is a JSON-schema-shaped object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// AssistantTurn is the model's response to one Invoke.
type AssistantTurn struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Sentinel errors for upstream failure classes the session reacts to.
var (
	// ErrOverloaded marks rate-limit or overload responses from the model.
	ErrOverloaded = errors.New("llm: model overloaded")
	// ErrAuth marks rejected credentials.
	ErrAuth = errors.New("llm: credentials rejected")
)

// ClassifyError wraps err with a sentinel when its text indicates a known
// upstream failure class. Returns err unchanged otherwise.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "529"),
		strings.Contains(msg, "rate limit"), strings.Contains(msg, "overloaded"):
		return fmt.Errorf("%w: %w", ErrOverloaded, err)
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "authentication"), strings.Contains(msg, "invalid api key"):
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	return err
}
