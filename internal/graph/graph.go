package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Radix-Obsidian/Voco-ai/internal/tools"
	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// DefaultSystemPrompt is the base orchestrator persona. Sessions extend it
// with a focused-context hint and recent session memory.
const DefaultSystemPrompt = "You are Voco, a voice-native coding assistant running as a local desktop agent. " +
	"You have access to tools to search the user's codebase via the secure local gateway. " +
	"Be concise — your responses will be spoken aloud via TTS. " +
	"When you need to find code, always use the search_codebase tool."

// selectorPrompt drives the one-word routing decision on the fast model.
const selectorPrompt = "You route user requests between two models. " +
	"Reply with exactly one word. " +
	"Reply FAST if the request is conversational, a greeting, or a simple factual question. " +
	"Reply FULL if it involves code, files, debugging, or multi-step work."

const skippedCallResult = "This call was skipped: only one tool action can run per turn. " +
	"Wait for the running action to finish, then call again if still needed."

// Result is the outcome of one Invoke or Resume. Interrupt is the review
// node the graph suspended before, or empty when the run reached the end.
type Result struct {
	State     *TurnState
	Interrupt NodeID
}

// Graph wires the reasoning nodes to a fast and a full model, the tool
// catalogue, and a checkpointer. One Graph serves one session.
type Graph struct {
	fast     llm.Provider
	full     llm.Provider
	registry *tools.Registry
	saver    Checkpointer

	systemPrompt string
	counter      TokenCounter
	budget       int
	logger       *slog.Logger
}

// Option customises a Graph.
type Option func(*Graph)

// WithSystemPrompt replaces the base system prompt.
func WithSystemPrompt(p string) Option {
	return func(g *Graph) { g.systemPrompt = p }
}

// WithTokenBudget sets the prompt-size cap.
func WithTokenBudget(n int) Option {
	return func(g *Graph) { g.budget = n }
}

// WithTokenCounter replaces the prompt-size estimator.
func WithTokenCounter(c TokenCounter) Option {
	return func(g *Graph) { g.counter = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// New builds a Graph. fast and full may be the same provider.
func New(fast, full llm.Provider, registry *tools.Registry, saver Checkpointer, opts ...Option) *Graph {
	g := &Graph{
		fast:         fast,
		full:         full,
		registry:     registry,
		saver:        saver,
		systemPrompt: DefaultSystemPrompt,
		budget:       DefaultTokenBudget,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	if g.counter == nil {
		g.counter = NewTiktokenCounter(full.Model())
	}
	return g
}

// Invoke runs one turn from the classifier. It returns when the run reaches
// the end or suspends at a review node; in the latter case the state has
// already been checkpointed and Resume continues it.
func (g *Graph) Invoke(ctx context.Context, state *TurnState) (*Result, error) {
	state.TurnCount++
	return g.run(ctx, state, NodeContextClassifier, false)
}

// Resume continues a suspended run with the user's decisions. Resuming counts
// as decision delivery even when both lists are empty: the review node then
// rejects everything pending, which is how an approval timeout resolves. When
// no run is suspended the call is a no-op returning the latest state, so
// duplicate decision messages are harmless.
func (g *Graph) Resume(ctx context.Context, proposals, commands []Decision) (*Result, error) {
	snap, err := g.saver.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: load checkpoint: %w", err)
	}
	if snap == nil {
		return &Result{State: &TurnState{}}, nil
	}
	state := snap.State
	if snap.NextNode != NodeProposalReview && snap.NextNode != NodeCommandReview {
		return &Result{State: &state}, nil
	}

	state.ProposalDecisions = proposals
	state.CommandDecisions = commands
	return g.run(ctx, &state, snap.NextNode, true)
}

// run executes nodes from start until the end or an interrupt. resumed marks
// a run re-entering its interrupt node: the first review executes even with
// no decisions supplied, treating the empty verdict map as reject-all.
func (g *Graph) run(ctx context.Context, state *TurnState, start NodeID, resumed bool) (*Result, error) {
	node := start
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}

		switch node {
		case NodeContextClassifier:
			state.ContextTag, state.FocusedContext = classifyContext(state.lastHumanText())
			node = NodeModelSelector

		case NodeModelSelector:
			state.RoutedModel = g.selectModel(ctx, state)
			node = NodeOrchestrator

		case NodeOrchestrator:
			if err := g.orchestrate(ctx, state); err != nil {
				return nil, err
			}
			node = g.route(state)

		case NodeProposalReview, NodeCommandReview:
			if !resumed && !g.decisionsFor(state, node) {
				// Interrupt: persist and hand control to the user.
				g.checkpoint(ctx, state, node)
				return &Result{State: state, Interrupt: node}, nil
			}
			resumed = false
			if node == NodeProposalReview {
				g.reviewProposals(state)
			} else {
				g.reviewCommands(state)
			}
			node = g.routeAfterReview(state)

		case NodeToolDispatch:
			// The pending action is executed outside the graph so slow tools
			// never block the conversational loop.
			node = NodeEnd

		case NodeEnd:
			g.checkpoint(ctx, state, "")
			return &Result{State: state}, nil

		default:
			return nil, fmt.Errorf("graph: unknown node %q", node)
		}
	}
}

// route decides the edge taken after the orchestrator. Barge-in needs no
// edge here: the orchestrator consumes the flag before it invokes the model.
func (g *Graph) route(state *TurnState) NodeID {
	switch {
	case len(state.PendingFileProposals) > 0:
		return NodeProposalReview
	case len(state.PendingCommandProposals) > 0:
		return NodeCommandReview
	case state.PendingToolAction != nil:
		return NodeToolDispatch
	default:
		return NodeEnd
	}
}

// routeAfterReview chains into the other review when its decisions arrived in
// the same resume, otherwise returns to the orchestrator.
func (g *Graph) routeAfterReview(state *TurnState) NodeID {
	if len(state.PendingCommandProposals) > 0 && len(state.CommandDecisions) > 0 {
		return NodeCommandReview
	}
	if len(state.PendingFileProposals) > 0 && len(state.ProposalDecisions) > 0 {
		return NodeProposalReview
	}
	return NodeOrchestrator
}

// decisionsFor reports whether the decisions consumed by the review node have
// been supplied. Without them the node is an interrupt point.
func (g *Graph) decisionsFor(state *TurnState, node NodeID) bool {
	if node == NodeProposalReview {
		return len(state.ProposalDecisions) > 0
	}
	return len(state.CommandDecisions) > 0
}

// ─── model selector ───

// selectModel asks the fast model to pick a tier for the latest utterance.
// Any failure or ambiguity routes to the full model.
func (g *Graph) selectModel(ctx context.Context, state *TurnState) string {
	question := strings.TrimSpace(state.lastHumanText())
	if question == "" {
		return ModelFull
	}

	turn, err := g.fast.Invoke(ctx, selectorPrompt, []llm.Message{
		{Role: llm.RoleHuman, Content: question},
	})
	if err != nil {
		g.logger.Warn("model selector failed, defaulting to full model", "error", err)
		return ModelFull
	}
	if strings.Contains(strings.ToUpper(turn.Content), "FAST") {
		return ModelFast
	}
	return ModelFull
}

// ─── orchestrator ───

func (g *Graph) orchestrate(ctx context.Context, state *TurnState) error {
	if state.BargeInDetected {
		state.Append(llm.Message{Role: llm.RoleSystem, Content: "[User interrupted playback]"})
		state.BargeInDetected = false
	}

	system := g.systemPrompt
	if state.FocusedContext != "" {
		system += "\n\n" + state.FocusedContext
	}

	prompt := trimToBudget(system, state.Messages, g.counter, g.budget)
	if n := len(state.Messages) - len(prompt); n > 0 {
		g.logger.Info("prompt trimmed to token budget", "dropped_messages", n)
	}

	provider := g.full
	if state.RoutedModel == ModelFast {
		provider = g.fast
	}
	provider.BindTools(g.registry.Definitions())

	turn, err := provider.Invoke(ctx, system, prompt)
	if err != nil {
		return fmt.Errorf("graph: orchestrator: %w", err)
	}

	state.Append(llm.Message{
		Role:      llm.RoleAssistant,
		Content:   turn.Content,
		ToolCalls: turn.ToolCalls,
	})
	g.partitionCalls(state, turn.ToolCalls)
	return nil
}

// partitionCalls sorts the model's tool calls into proposals and at most one
// background action. Surplus action calls get an immediate tool result so the
// transcript never carries an unanswered call.
func (g *Graph) partitionCalls(state *TurnState, calls []llm.ToolCall) {
	state.PendingToolAction = nil
	state.PendingFileProposals = nil
	state.PendingCommandProposals = nil

	for _, tc := range calls {
		args, err := tc.Args()
		if err != nil {
			state.Append(llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Content:    fmt.Sprintf("Error executing tool %s: invalid arguments JSON: %v", tc.Name, err),
			})
			continue
		}

		switch g.registry.Classify(tc.Name) {
		case tools.ClassFileProposal:
			state.PendingFileProposals = append(state.PendingFileProposals, Proposal{
				ProposalID:  "prop_" + shortID(),
				CallID:      tc.ID,
				Action:      argString(args, "action"),
				FilePath:    argString(args, "file_path"),
				Content:     argString(args, "content"),
				Diff:        argString(args, "diff"),
				Description: argString(args, "description"),
				ProjectRoot: state.ProjectPath,
			})

		case tools.ClassCommandProposal:
			state.PendingCommandProposals = append(state.PendingCommandProposals, CommandProposal{
				CommandID:   "cmd_" + shortID(),
				CallID:      tc.ID,
				Command:     argString(args, "command"),
				Description: argString(args, "description"),
				ProjectPath: state.ProjectPath,
			})

		default:
			if state.PendingToolAction == nil {
				call := tc
				state.PendingToolAction = &call
				continue
			}
			state.Append(llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Content:    skippedCallResult,
			})
		}
	}
}

// ─── review nodes ───

func (g *Graph) reviewProposals(state *TurnState) {
	verdicts := decisionIndex(state.ProposalDecisions)

	for _, p := range state.PendingFileProposals {
		d, ok := verdicts[p.ProposalID]
		var text string
		switch {
		case ok && d.Approved && d.Output != "":
			text = fmt.Sprintf("User approved the change to %s. %s", p.FilePath, d.Output)
		case ok && d.Approved:
			text = fmt.Sprintf("User approved the change to %s. The file was written successfully.", p.FilePath)
		default:
			text = fmt.Sprintf("User rejected the proposed change to %s. Do not retry without new instructions.", p.FilePath)
		}
		state.Append(llm.Message{Role: llm.RoleTool, ToolCallID: p.CallID, Content: text})
	}

	state.PendingFileProposals = nil
	state.ProposalDecisions = nil
}

func (g *Graph) reviewCommands(state *TurnState) {
	verdicts := decisionIndex(state.CommandDecisions)

	for _, c := range state.PendingCommandProposals {
		d, ok := verdicts[c.CommandID]
		var text string
		switch {
		case ok && d.Approved:
			output := d.Output
			if strings.TrimSpace(output) == "" {
				output = "(no output)"
			}
			text = fmt.Sprintf("User approved the command `%s`. Output:\n%s", c.Command, output)
		default:
			text = fmt.Sprintf("User rejected the command `%s`. It was not executed.", c.Command)
		}
		state.Append(llm.Message{Role: llm.RoleTool, ToolCallID: c.CallID, Content: text})
	}

	state.PendingCommandProposals = nil
	state.CommandDecisions = nil
}

func decisionIndex(decisions []Decision) map[string]Decision {
	m := make(map[string]Decision, len(decisions))
	for _, d := range decisions {
		m[d.ID] = d
	}
	return m
}

// ─── checkpointing ───

// checkpoint persists the state. Persistence failures are logged, never
// fatal: losing resumability is better than losing the live turn.
func (g *Graph) checkpoint(ctx context.Context, state *TurnState, next NodeID) {
	snap := &Snapshot{State: *state, NextNode: next, CreatedAt: time.Now().UTC()}
	if err := g.saver.Append(ctx, snap); err != nil {
		g.logger.Warn("checkpoint append failed", "error", err)
	}
}

// Checkpoint persists the current state outside a run. The session uses it
// after appending background-job results to the transcript.
func (g *Graph) Checkpoint(ctx context.Context, state *TurnState) {
	g.checkpoint(ctx, state, "")
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
