// Package archive writes one JSON file per completed turn so a session's
// exact prompts can be replayed during debugging. Archiving is best-effort;
// a failed write never affects the live turn.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Radix-Obsidian/Voco-ai/pkg/provider/llm"
)

// hashLen is the number of hex characters kept from the prompt digest.
const hashLen = 12

// Turn is the archived form of one completed turn.
type Turn struct {
	Turn       int           `json:"turn"`
	Timestamp  time.Time     `json:"timestamp"`
	PromptHash string        `json:"prompt_hash"`
	System     string        `json:"system"`
	Messages   []llm.Message `json:"messages"`
}

// Writer archives turns under one session directory.
type Writer struct {
	dir string
}

// NewWriter archives into sessionDir. The directory is created on first
// write.
func NewWriter(sessionDir string) *Writer {
	return &Writer{dir: sessionDir}
}

// WriteTurn stores turn_<n>.json.
func (w *Writer) WriteTurn(n int, system string, msgs []llm.Message) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("archive: create dir: %w", err)
	}

	t := Turn{
		Turn:       n,
		Timestamp:  time.Now().UTC(),
		PromptHash: PromptHash(system, msgs),
		System:     system,
		Messages:   msgs,
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode turn %d: %w", n, err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("turn_%d.json", n))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("archive: write %s: %w", path, err)
	}
	return nil
}

// PromptHash fingerprints a prompt as the first 12 hex characters of its
// SHA-256. Stable across runs for identical prompts.
func PromptHash(system string, msgs []llm.Message) string {
	h := sha256.New()
	h.Write([]byte(system))
	for _, m := range msgs {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.FlattenParts()))
		for _, tc := range m.ToolCalls {
			h.Write([]byte{0})
			h.Write([]byte(tc.Name))
			h.Write([]byte(tc.Arguments))
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:hashLen]
}
