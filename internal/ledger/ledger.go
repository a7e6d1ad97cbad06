// Package ledger mirrors per-session reasoning activity into Postgres for
// fleet-wide analysis. The ledger is strictly best-effort: when no DSN is
// configured or the database is unreachable the engine runs identically with
// persistence disabled.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_sessions (
	session_id TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen  TIMESTAMPTZ NOT NULL DEFAULT now(),
	turns      INTEGER NOT NULL DEFAULT 0,
	rpc_calls  INTEGER NOT NULL DEFAULT 0,
	timeouts   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS ledger_nodes (
	id         BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	turn       INTEGER NOT NULL,
	node       TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_nodes_session_idx ON ledger_nodes (session_id, turn);
`

// Ledger persists session activity. The zero-value-like disabled form drops
// every write.
type Ledger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to Postgres and ensures the schema. An empty dsn, a failed
// connection, or a failed migration all yield a disabled ledger and a log
// line, never an error.
func Open(ctx context.Context, dsn string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{logger: logger}
	if dsn == "" {
		logger.Info("ledger disabled, no database configured")
		return l
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		logger.Warn("ledger disabled, bad configuration", "error", err)
		return l
	}
	// The pool connects lazily; ping so a dead database disables the ledger
	// up front instead of on the first turn.
	if err := pool.Ping(connectCtx); err != nil {
		logger.Warn("ledger disabled, connection failed", "error", err)
		pool.Close()
		return l
	}
	if _, err := pool.Exec(connectCtx, schema); err != nil {
		logger.Warn("ledger disabled, schema init failed", "error", err)
		pool.Close()
		return l
	}

	l.pool = pool
	logger.Info("ledger connected")
	return l
}

// Enabled reports whether writes reach the database.
func (l *Ledger) Enabled() bool {
	return l.pool != nil
}

// Ping probes the database connection. A disabled ledger is healthy, it just
// persists nothing.
func (l *Ledger) Ping(ctx context.Context) error {
	if l.pool == nil {
		return nil
	}
	return l.pool.Ping(ctx)
}

// TouchSession registers or refreshes a session row.
func (l *Ledger) TouchSession(ctx context.Context, sessionID string) {
	if l.pool == nil {
		return
	}
	_, err := l.pool.Exec(ctx, `
		INSERT INTO ledger_sessions (session_id) VALUES ($1)
		ON CONFLICT (session_id) DO UPDATE SET last_seen = now()`,
		sessionID)
	if err != nil {
		l.logger.Warn("ledger session upsert failed", "session_id", sessionID, "error", err)
	}
}

// RecordNode appends one reasoning-node event for a turn.
func (l *Ledger) RecordNode(ctx context.Context, sessionID string, turn int, node, detail string) {
	if l.pool == nil {
		return
	}
	_, err := l.pool.Exec(ctx, `
		INSERT INTO ledger_nodes (session_id, turn, node, detail) VALUES ($1, $2, $3, $4)`,
		sessionID, turn, node, detail)
	if err != nil {
		l.logger.Warn("ledger node insert failed", "session_id", sessionID, "error", err)
	}
}

// SyncCounters writes the session's final counters at teardown.
func (l *Ledger) SyncCounters(ctx context.Context, sessionID string, turns, rpcCalls int, timeouts int64) {
	if l.pool == nil {
		return
	}
	_, err := l.pool.Exec(ctx, `
		INSERT INTO ledger_sessions (session_id, turns, rpc_calls, timeouts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET
			last_seen = now(), turns = $2, rpc_calls = $3, timeouts = $4`,
		sessionID, turns, rpcCalls, timeouts)
	if err != nil {
		l.logger.Warn("ledger counter sync failed", "session_id", sessionID, "error", err)
	}
}

// Close releases the pool.
func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}
