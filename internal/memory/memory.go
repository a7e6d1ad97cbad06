// Package memory keeps a lightweight cross-session history in a JSONL file.
// The newest entries are folded into the orchestrator system prompt so the
// assistant remembers what it worked on in earlier sessions.
package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PromptRecords is how many recent sessions the prompt block includes.
const PromptRecords = 20

// Record summarises one finished session.
type Record struct {
	SessionID   string    `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Turns       int       `json:"turns"`
	ProjectPath string    `json:"project_path,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}

// Store appends and reads session records. Safe for concurrent use within
// one process.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore uses the given JSONL file, conventionally
// <app-data>/.voco/sessions.jsonl.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Append writes one record.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("memory: create dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open %s: %w", s.path, err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: encode record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("memory: append: %w", err)
	}
	return nil
}

// Recent returns up to n newest records, oldest first. A missing file is an
// empty history, not an error. Corrupt lines are skipped.
func (s *Store) Recent(n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: open %s: %w", s.path, err)
	}
	defer f.Close()

	var all []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		all = append(all, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("memory: scan %s: %w", s.path, err)
	}

	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// PromptBlock renders records as a system-prompt section. Empty history
// renders as "".
func PromptBlock(recs []Record) string {
	if len(recs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Recent sessions with this user:\n")
	for _, r := range recs {
		line := fmt.Sprintf("- %s: %d turns", r.EndedAt.Format("2006-01-02"), r.Turns)
		if r.ProjectPath != "" {
			line += " in " + r.ProjectPath
		}
		if r.Summary != "" {
			line += " — " + r.Summary
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
