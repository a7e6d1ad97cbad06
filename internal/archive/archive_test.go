package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

func TestWriteTurnRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWriter(dir)

	msgs := []llm.Message{
		{Role: llm.RoleHuman, Content: "find the bug"},
		{Role: llm.RoleAssistant, Content: "Looking now."},
	}
	if err := w.WriteTurn(3, "system prompt", msgs); err != nil {
		t.Fatalf("WriteTurn: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "turn_3.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got Turn
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Turn != 3 || len(got.Messages) != 2 {
		t.Errorf("archived turn = %+v", got)
	}
	if len(got.PromptHash) != hashLen {
		t.Errorf("PromptHash = %q, want %d hex chars", got.PromptHash, hashLen)
	}
}

func TestPromptHashStability(t *testing.T) {
	t.Parallel()

	msgs := []llm.Message{{Role: llm.RoleHuman, Content: "hello"}}
	a := PromptHash("sys", msgs)
	b := PromptHash("sys", msgs)
	if a != b {
		t.Errorf("hash not stable: %q vs %q", a, b)
	}
	if c := PromptHash("other sys", msgs); c == a {
		t.Error("different prompts collided")
	}
	withCall := []llm.Message{{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{Name: "read_file", Arguments: `{"file_path":"a"}`}},
	}}
	if d := PromptHash("sys", withCall); d == a {
		t.Error("tool calls not hashed")
	}
}

func TestWriterCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "session")
	w := NewWriter(dir)
	if err := w.WriteTurn(1, "s", nil); err != nil {
		t.Fatalf("WriteTurn: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "turn_1.json")); err != nil {
		t.Fatalf("archive file missing: %v", err)
	}
}
