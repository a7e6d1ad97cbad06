package graph

import (
	"fmt"
	"testing"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

func humanMsg(i int) llm.Message {
	return llm.Message{Role: llm.RoleHuman, Content: fmt.Sprintf("message %d", i)}
}

func TestTrimNoopUnderBudget(t *testing.T) {
	t.Parallel()

	msgs := []llm.Message{humanMsg(0), humanMsg(1)}
	got := trimToBudget("sys", msgs, flatCounter{per: 1}, 100)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestTrimDropsOldestFirst(t *testing.T) {
	t.Parallel()

	msgs := make([]llm.Message, 0, 20)
	for i := 0; i < 20; i++ {
		msgs = append(msgs, humanMsg(i))
	}

	got := trimToBudget("", msgs, flatCounter{per: 10}, 120)
	if len(got) != 12 {
		t.Fatalf("kept %d messages, want 12", len(got))
	}
	if got[0].Content != "message 8" {
		t.Errorf("oldest kept = %q, want message 8", got[0].Content)
	}
	if got[len(got)-1].Content != "message 19" {
		t.Errorf("newest kept = %q", got[len(got)-1].Content)
	}
}

func TestTrimProtectsRecentMessages(t *testing.T) {
	t.Parallel()

	msgs := make([]llm.Message, 0, 12)
	for i := 0; i < 12; i++ {
		msgs = append(msgs, humanMsg(i))
	}

	// Budget forces dropping everything unprotected; the newest ten survive
	// even though they alone exceed the budget.
	got := trimToBudget("", msgs, flatCounter{per: 10}, 50)
	if len(got) != 10 {
		t.Fatalf("kept %d messages, want the protected 10", len(got))
	}
	if got[0].Content != "message 2" {
		t.Errorf("oldest kept = %q, want message 2", got[0].Content)
	}
}

func TestTrimKeepsToolPairsTogether(t *testing.T) {
	t.Parallel()

	// Old tool exchange at the head, pushed out of both protection windows by
	// four newer exchanges and filler.
	msgs := []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "read_file"}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Content: "contents"},
	}
	for i := 0; i < 8; i++ {
		msgs = append(msgs, humanMsg(i))
	}
	for n := 2; n <= 5; n++ {
		id := fmt.Sprintf("c%d", n)
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: id, Name: "read_file"}}},
			llm.Message{Role: llm.RoleTool, ToolCallID: id, Content: "contents"},
		)
	}
	for i := 8; i < 14; i++ {
		msgs = append(msgs, humanMsg(i))
	}

	got := trimToBudget("", msgs, flatCounter{per: 10}, 150)
	for _, m := range got {
		if m.Role == llm.RoleTool && m.ToolCallID == "c1" {
			t.Fatal("orphaned tool result survived trimming")
		}
		if m.Role == llm.RoleAssistant && issuesCall(m, "c1") {
			t.Fatal("orphaned tool call survived trimming")
		}
	}
}

func TestTrimProtectsRecentToolResultsWithPartners(t *testing.T) {
	t.Parallel()

	// A tool exchange sitting outside the recent-10 window must survive
	// because its result is one of the newest four tool results.
	msgs := make([]llm.Message, 0, 24)
	for i := 0; i < 8; i++ {
		msgs = append(msgs, humanMsg(i))
	}
	msgs = append(msgs,
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "keep", Name: "search_codebase"}}},
		llm.Message{Role: llm.RoleTool, ToolCallID: "keep", Content: "hits"},
	)
	for i := 8; i < 20; i++ {
		msgs = append(msgs, humanMsg(i))
	}

	got := trimToBudget("", msgs, flatCounter{per: 10}, 130)
	foundCall, foundResult := false, false
	for _, m := range got {
		if m.Role == llm.RoleAssistant && issuesCall(m, "keep") {
			foundCall = true
		}
		if m.Role == llm.RoleTool && m.ToolCallID == "keep" {
			foundResult = true
		}
	}
	if !foundCall || !foundResult {
		t.Fatalf("protected tool exchange dropped: call=%v result=%v", foundCall, foundResult)
	}
}

func TestTrimDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	msgs := make([]llm.Message, 0, 20)
	for i := 0; i < 20; i++ {
		msgs = append(msgs, humanMsg(i))
	}
	_ = trimToBudget("", msgs, flatCounter{per: 10}, 120)
	if len(msgs) != 20 || msgs[0].Content != "message 0" {
		t.Fatal("input slice mutated")
	}
}
