package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Radix-Obsidian/Voco-ai/internal/protocol"
)

func TestResolveBeforeAwait(t *testing.T) {
	t.Parallel()

	p := NewPending()
	p.Register("call_1")

	if !p.Resolve("call_1", &protocol.RPCResult{ID: "call_1", Result: json.RawMessage(`"ok"`)}) {
		t.Fatal("Resolve returned false for registered future")
	}

	res, err := p.Await(context.Background(), "call_1", time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if got := res.ResultText(); got != "ok" {
		t.Errorf("ResultText = %q", got)
	}
}

func TestAwaitBlocksUntilResolved(t *testing.T) {
	t.Parallel()

	p := NewPending()
	p.Register("call_2")

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Resolve("call_2", &protocol.RPCResult{ID: "call_2", Result: json.RawMessage(`"late"`)})
	}()

	res, err := p.Await(context.Background(), "call_2", time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if got := res.ResultText(); got != "late" {
		t.Errorf("ResultText = %q", got)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	t.Parallel()

	p := NewPending()
	p.Register("call_3")

	_, err := p.Await(context.Background(), "call_3", 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len = %d after timeout, want 0", p.Len())
	}

	// The late reply now counts as unknown.
	if p.Resolve("call_3", &protocol.RPCResult{ID: "call_3"}) {
		t.Error("Resolve after timeout should report unknown")
	}
	if p.UnknownCount() != 1 {
		t.Errorf("UnknownCount = %d, want 1", p.UnknownCount())
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	t.Parallel()

	p := NewPending()
	p.Register("call_4")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Await(ctx, "call_4", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestUnknownReplyIgnored(t *testing.T) {
	t.Parallel()

	p := NewPending()
	if p.Resolve("never_registered", &protocol.RPCResult{ID: "never_registered"}) {
		t.Error("Resolve returned true for unknown id")
	}
	if p.UnknownCount() != 1 {
		t.Errorf("UnknownCount = %d, want 1", p.UnknownCount())
	}
}

func TestSweepPrunesUnclaimedResolvedFutures(t *testing.T) {
	t.Parallel()

	p := NewPending()
	p.Register("abandoned")
	p.Register("waiting")

	// The waiter for "abandoned" gave up before the reply landed.
	if !p.Resolve("abandoned", &protocol.RPCResult{ID: "abandoned"}) {
		t.Fatal("Resolve returned false for registered future")
	}

	p.sweep(time.Now())
	if p.Len() != 1 {
		t.Fatalf("Len = %d after sweep, want 1 (only the unresolved future)", p.Len())
	}
	if _, err := p.Await(context.Background(), "abandoned", 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("Await on swept future: err = %v, want ErrTimeout", err)
	}
}

func TestSweepReclaimsExpiredFutures(t *testing.T) {
	t.Parallel()

	p := NewPending()
	p.Register("old")
	p.Register("fresh")

	p.mu.Lock()
	p.futures["old"].created = time.Now().Add(-futureTTL - time.Minute)
	p.mu.Unlock()

	p.sweep(time.Now())
	if p.Len() != 1 {
		t.Fatalf("Len = %d after sweep, want 1", p.Len())
	}
	if p.Resolve("old", &protocol.RPCResult{ID: "old"}) {
		t.Error("swept future still resolvable")
	}
	if !p.Resolve("fresh", &protocol.RPCResult{ID: "fresh"}) {
		t.Error("fresh future was swept")
	}
}
