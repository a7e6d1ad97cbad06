// Package graph implements the multi-stage reasoning state machine that
// drives one conversational turn: context classification, fast/full model
// routing, the tool-calling orchestrator, and the two human-in-the-loop
// review nodes.
//
// Cycles (review → orchestrator → review) are expressed as a directed graph
// with an interrupt set and an external Resume call, not as recursion. Nodes
// are tagged variants; routing is a pure function on TurnState. All state
// writes flow through the checkpointer so a session can be resumed after the
// graph suspends at a review node.
package graph

import (
	"context"
	"time"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// NodeID identifies one node of the reasoning graph.
type NodeID string

const (
	NodeContextClassifier NodeID = "context_classifier"
	NodeModelSelector     NodeID = "model_selector"
	NodeOrchestrator      NodeID = "orchestrator"
	NodeToolDispatch      NodeID = "tool_dispatch"
	NodeProposalReview    NodeID = "proposal_review"
	NodeCommandReview     NodeID = "command_review"
	NodeEnd               NodeID = "end"
)

// Model routing tags.
const (
	ModelFast = "fast"
	ModelFull = "full"
)

// Proposal is a pending file change awaiting user approval. CallID links the
// proposal back to the tool call that produced it so the review node can emit
// a correctly paired tool result.
type Proposal struct {
	ProposalID  string `json:"proposal_id"`
	CallID      string `json:"call_id"`
	Action      string `json:"action"` // create_file or edit_file
	FilePath    string `json:"file_path"`
	Content     string `json:"content,omitempty"`
	Diff        string `json:"diff,omitempty"`
	Description string `json:"description,omitempty"`
	ProjectRoot string `json:"project_root,omitempty"`
}

// CommandProposal is a pending shell command awaiting user approval.
type CommandProposal struct {
	CommandID   string `json:"command_id"`
	CallID      string `json:"call_id"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
}

// Decision is the user's verdict on one proposal or command, supplied on
// resume. Output carries captured stdout for approved commands.
type Decision struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
	Output   string `json:"output,omitempty"`
}

// TurnState is the reasoning graph state. It is checkpointed after every
// graph run and restored on resume.
type TurnState struct {
	// Messages is the append-only conversation log.
	Messages []llm.Message `json:"messages"`

	ContextTag     string `json:"context_tag,omitempty"`
	FocusedContext string `json:"focused_context,omitempty"`
	RoutedModel    string `json:"routed_model,omitempty"`

	// PendingToolAction holds at most one local-RPC, remote-API, inline, or
	// sandbox tool call per turn.
	PendingToolAction *llm.ToolCall `json:"pending_tool_action,omitempty"`

	PendingFileProposals    []Proposal        `json:"pending_file_proposals,omitempty"`
	PendingCommandProposals []CommandProposal `json:"pending_command_proposals,omitempty"`

	// Decision lists are populated by Resume and consumed by the review nodes.
	ProposalDecisions []Decision `json:"proposal_decisions,omitempty"`
	CommandDecisions  []Decision `json:"command_decisions,omitempty"`

	ProjectPath     string `json:"project_path,omitempty"`
	BargeInDetected bool   `json:"barge_in_detected,omitempty"`
	TurnCount       int    `json:"turn_count,omitempty"`
}

// Append adds messages to the log. The log is append-only; no other method
// mutates already-appended entries.
func (s *TurnState) Append(msgs ...llm.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// LastAssistantText returns the text of the most recent assistant message,
// or "" when none exists. Used by the TTS phase.
func (s *TurnState) LastAssistantText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// lastHumanText returns the most recent user message text.
func (s *TurnState) lastHumanText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleHuman {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Snapshot is one durable TurnState capture. NextNode is set when the graph
// suspended before an interrupt node and empty when the run completed.
type Snapshot struct {
	State     TurnState `json:"state"`
	NextNode  NodeID    `json:"next_node,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpointer persists snapshots for one session. Implementations serialize
// appends per session.
type Checkpointer interface {
	// Append stores a new snapshot as the latest.
	Append(ctx context.Context, snap *Snapshot) error

	// Latest returns the most recent snapshot, or (nil, nil) when none exists.
	Latest(ctx context.Context) (*Snapshot, error)
}
