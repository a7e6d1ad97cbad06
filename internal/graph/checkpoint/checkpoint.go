// Package checkpoint persists reasoning-graph snapshots to a per-session
// SQLite database so suspended runs survive process restarts.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Radix-Obsidian/Voco-ai/internal/graph"
)

// DefaultKeep is how many snapshots Prune retains.
const DefaultKeep = 50

const fileName = "checkpoints.db"

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	next_node  TEXT NOT NULL,
	state      BLOB NOT NULL
);
`

// Store is a graph.Checkpointer backed by one SQLite file per session.
type Store struct {
	db   *sql.DB
	path string
}

var _ graph.Checkpointer = (*Store)(nil)

// Open creates or opens the checkpoint database inside the session directory.
func Open(sessionDir string) (*Store, error) {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create session dir: %w", err)
	}
	path := filepath.Join(sessionDir, fileName)

	dsn := "file:" + url.PathEscape(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	// Single writer; the driver serializes anyway but this keeps WAL simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: init schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Append stores a snapshot as the new latest.
func (s *Store) Append(ctx context.Context, snap *graph.Snapshot) error {
	blob, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("checkpoint: encode state: %w", err)
	}
	created := snap.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (created_at, next_node, state) VALUES (?, ?, ?)`,
		created.Format(time.RFC3339Nano), string(snap.NextNode), blob,
	)
	if err != nil {
		return fmt.Errorf("checkpoint: append: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot, or (nil, nil) when the store is empty.
func (s *Store) Latest(ctx context.Context) (*graph.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT created_at, next_node, state FROM checkpoints ORDER BY id DESC LIMIT 1`)

	var createdAt, nextNode string
	var blob []byte
	if err := row.Scan(&createdAt, &nextNode, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: read latest: %w", err)
	}

	snap := &graph.Snapshot{NextNode: graph.NodeID(nextNode)}
	if err := json.Unmarshal(blob, &snap.State); err != nil {
		return nil, fmt.Errorf("checkpoint: decode state: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		snap.CreatedAt = t
	}
	return snap, nil
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("checkpoint: count: %w", err)
	}
	return n, nil
}

// Prune deletes all but the newest keep snapshots.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		keep = DefaultKeep
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE id NOT IN
			(SELECT id FROM checkpoints ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return fmt.Errorf("checkpoint: prune: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
