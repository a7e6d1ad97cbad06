package graph

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// DefaultTokenBudget is the hard cap on prompt size sent to the model.
const DefaultTokenBudget = 160_000

const (
	// protectedRecent messages at the tail of the log are never trimmed.
	protectedRecent = 10

	// protectedToolResults newest tool-result messages are never trimmed.
	protectedToolResults = 4

	// perMessageOverhead approximates the per-message framing tokens the
	// provider adds around content.
	perMessageOverhead = 4
)

// TokenCounter estimates prompt size. Estimates may be approximate; the
// trimmer only needs monotonicity, not exactness.
type TokenCounter interface {
	Count(system string, msgs []llm.Message) int
	CountMessage(msg llm.Message) int
}

// ─── tiktoken counter ───

// TiktokenCounter counts with a BPE encoding and falls back to a bytes/4
// heuristic when no encoding is available (offline builds, unknown models).
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a counter for the given model name.
func NewTiktokenCounter(model string) *TiktokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("token encoding unavailable, using character heuristic", "model", model, "error", err)
			enc = nil
		}
	}
	return &TiktokenCounter{enc: enc}
}

func (c *TiktokenCounter) countText(text string) int {
	if c.enc == nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) CountMessage(msg llm.Message) int {
	n := c.countText(msg.FlattenParts()) + perMessageOverhead
	for _, tc := range msg.ToolCalls {
		n += c.countText(tc.Name) + c.countText(tc.Arguments)
	}
	return n
}

func (c *TiktokenCounter) Count(system string, msgs []llm.Message) int {
	n := c.countText(system) + perMessageOverhead
	for _, m := range msgs {
		n += c.CountMessage(m)
	}
	return n
}

var _ TokenCounter = (*TiktokenCounter)(nil)

// ─── trimmer ───

// trimToBudget drops the oldest unprotected messages until the prompt fits
// the budget. The newest protectedRecent messages and newest
// protectedToolResults tool results are kept, extended so that tool-call /
// tool-result pairs are never split: protecting one side protects the other,
// and removing one side removes the other.
//
// Trimming never mutates the input slice.
func trimToBudget(system string, msgs []llm.Message, counter TokenCounter, budget int) []llm.Message {
	total := counter.Count(system, msgs)
	if total <= budget || len(msgs) == 0 {
		return msgs
	}

	protected := protectedSet(msgs)

	removed := make([]bool, len(msgs))
	for i := 0; i < len(msgs) && total > budget; i++ {
		if protected[i] || removed[i] {
			continue
		}
		for _, j := range withPartners(msgs, i) {
			if !removed[j] {
				removed[j] = true
				total -= counter.CountMessage(msgs[j])
			}
		}
	}

	kept := make([]llm.Message, 0, len(msgs))
	for i, m := range msgs {
		if !removed[i] {
			kept = append(kept, m)
		}
	}
	return kept
}

// protectedSet marks the indices trimming must keep, with tool-pair closure.
func protectedSet(msgs []llm.Message) []bool {
	protected := make([]bool, len(msgs))

	start := len(msgs) - protectedRecent
	if start < 0 {
		start = 0
	}
	for i := start; i < len(msgs); i++ {
		protected[i] = true
	}

	toolSeen := 0
	for i := len(msgs) - 1; i >= 0 && toolSeen < protectedToolResults; i-- {
		if msgs[i].Role == llm.RoleTool {
			protected[i] = true
			toolSeen++
		}
	}

	// Pair closure: protecting either side of a tool exchange protects the
	// whole exchange.
	work := make([]int, 0, len(msgs))
	for i, p := range protected {
		if p {
			work = append(work, i)
		}
	}
	for len(work) > 0 {
		i := work[0]
		work = work[1:]
		for _, j := range withPartners(msgs, i) {
			if !protected[j] {
				protected[j] = true
				work = append(work, j)
			}
		}
	}
	return protected
}

// withPartners returns i plus the indices of its tool-exchange partners: for
// an assistant message with tool calls, every matching tool result; for a
// tool result, the assistant message that issued the call and that message's
// other results.
func withPartners(msgs []llm.Message, i int) []int {
	out := []int{i}

	switch msgs[i].Role {
	case llm.RoleAssistant:
		for _, tc := range msgs[i].ToolCalls {
			for j := i + 1; j < len(msgs); j++ {
				if msgs[j].Role == llm.RoleTool && msgs[j].ToolCallID == tc.ID {
					out = append(out, j)
					break
				}
			}
		}
	case llm.RoleTool:
		for j := i - 1; j >= 0; j-- {
			if msgs[j].Role != llm.RoleAssistant {
				continue
			}
			if !issuesCall(msgs[j], msgs[i].ToolCallID) {
				continue
			}
			// Pull the whole exchange, not just our own call.
			for _, k := range withPartners(msgs, j) {
				out = append(out, k)
			}
			break
		}
	}
	return out
}

func issuesCall(msg llm.Message, callID string) bool {
	for _, tc := range msg.ToolCalls {
		if tc.ID == callID {
			return true
		}
	}
	return false
}
