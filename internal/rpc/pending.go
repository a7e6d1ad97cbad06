// Package rpc correlates JSON-RPC requests sent to the desktop client with
// the replies that come back over the same socket. Each outgoing call
// registers a one-shot future keyed by call ID; the session's receive loop
// resolves it when the reply arrives.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Radix-Obsidian/Voco-ai/internal/protocol"
)

const (
	// DefaultTimeout bounds one background RPC round trip.
	DefaultTimeout = 30 * time.Second

	// futureTTL is how long an unresolved future may linger before the
	// sweeper reclaims it. Waiters time out long before this; the TTL only
	// guards against leaked entries.
	futureTTL = 5 * time.Minute

	sweepInterval = 60 * time.Second
)

// ErrTimeout is returned by Await when the client never replies in time.
var ErrTimeout = errors.New("rpc: timed out waiting for client reply")

type future struct {
	ch       chan *protocol.RPCResult
	created  time.Time
	resolved bool
}

// Pending is the per-session future table.
type Pending struct {
	mu      sync.Mutex
	futures map[string]*future

	unknown atomic.Int64
	logger  *slog.Logger
}

// Option customises a Pending table.
type Option func(*Pending)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pending) { p.logger = l }
}

// NewPending creates an empty future table.
func NewPending(opts ...Option) *Pending {
	p := &Pending{
		futures: make(map[string]*future),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Register creates a future for callID. Registering an ID twice replaces the
// earlier future; its waiter will time out.
func (p *Pending) Register(callID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.futures[callID] = &future{
		ch:      make(chan *protocol.RPCResult, 1),
		created: time.Now(),
	}
}

// Resolve delivers a reply to the waiter. The entry stays in the table so a
// reply landing before Await starts is still claimed; the buffered channel
// holds the result and the sweeper prunes resolved futures nobody collects.
// Replies with no registered future, duplicates included, are counted and
// dropped; they must not disturb the session.
func (p *Pending) Resolve(callID string, res *protocol.RPCResult) bool {
	p.mu.Lock()
	f, ok := p.futures[callID]
	if ok && f.resolved {
		ok = false
	}
	if ok {
		f.resolved = true
	}
	p.mu.Unlock()

	if !ok {
		p.unknown.Add(1)
		p.logger.Warn("reply for unknown call id dropped", "call_id", callID)
		return false
	}
	f.ch <- res
	return true
}

// Await blocks until the future resolves, the timeout elapses, or ctx ends.
// The future is removed in every case.
func (p *Pending) Await(ctx context.Context, callID string, timeout time.Duration) (*protocol.RPCResult, error) {
	p.mu.Lock()
	f, ok := p.futures[callID]
	p.mu.Unlock()
	if !ok {
		return nil, ErrTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-f.ch:
		p.Cancel(callID)
		return res, nil
	case <-timer.C:
		p.Cancel(callID)
		return nil, ErrTimeout
	case <-ctx.Done():
		p.Cancel(callID)
		return nil, ctx.Err()
	}
}

// Cancel removes a future without resolving it. A reply arriving later counts
// as unknown.
func (p *Pending) Cancel(callID string) {
	p.mu.Lock()
	delete(p.futures, callID)
	p.mu.Unlock()
}

// Len returns the number of outstanding futures.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.futures)
}

// UnknownCount returns how many replies arrived with no matching future.
func (p *Pending) UnknownCount() int64 {
	return p.unknown.Load()
}

// StartSweeper prunes unclaimed resolved futures and expired unresolved ones
// every minute until ctx ends.
func (p *Pending) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.sweep(time.Now())
			}
		}
	}()
}

func (p *Pending) sweep(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, f := range p.futures {
		switch {
		case f.resolved:
			// Resolved but never claimed: the waiter gave up first.
			delete(p.futures, id)
		case now.Sub(f.created) > futureTTL:
			delete(p.futures, id)
			p.logger.Warn("expired rpc future reclaimed", "call_id", id)
		}
	}
}
