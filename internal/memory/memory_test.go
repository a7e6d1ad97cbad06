package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), ".voco", "sessions.jsonl"))
}

func TestRecentOnMissingFile(t *testing.T) {
	t.Parallel()

	recs, err := testStore(t).Recent(PromptRecords)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recs != nil {
		t.Fatalf("recs = %v, want nil", recs)
	}
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	for i := 1; i <= 25; i++ {
		rec := Record{
			SessionID: fmt.Sprintf("s%d", i),
			EndedAt:   time.Date(2026, 8, i, 12, 0, 0, 0, time.UTC),
			Turns:     i,
		}
		if err := s.Append(rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	recs, err := s.Recent(PromptRecords)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != PromptRecords {
		t.Fatalf("len = %d, want %d", len(recs), PromptRecords)
	}
	if recs[0].SessionID != "s6" || recs[len(recs)-1].SessionID != "s25" {
		t.Errorf("window = %s..%s, want s6..s25", recs[0].SessionID, recs[len(recs)-1].SessionID)
	}
}

func TestRecentSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	if err := s.Append(Record{SessionID: "good"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString("{not json\n")
	f.Close()
	if err := s.Append(Record{SessionID: "also good"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recs, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
}

func TestPromptBlock(t *testing.T) {
	t.Parallel()

	if got := PromptBlock(nil); got != "" {
		t.Errorf("empty history block = %q", got)
	}

	recs := []Record{
		{EndedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC), Turns: 4, ProjectPath: "/home/u/api"},
		{EndedAt: time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC), Turns: 2, Summary: "fixed login redirect"},
	}
	got := PromptBlock(recs)
	for _, want := range []string{"Recent sessions", "2026-08-20", "/home/u/api", "fixed login redirect"} {
		if !strings.Contains(got, want) {
			t.Errorf("PromptBlock missing %q in %q", want, got)
		}
	}
}
