package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// collector records completion callbacks.
type collector struct {
	mu      sync.Mutex
	results map[string]string
	calls   atomic.Int64
	done    chan struct{}
	want    int
}

func newCollector(want int) *collector {
	return &collector{results: map[string]string{}, done: make(chan struct{}), want: want}
}

func (c *collector) complete(jobID, _, result string) {
	c.mu.Lock()
	c.results[jobID] = result
	c.mu.Unlock()
	if int(c.calls.Add(1)) == c.want {
		close(c.done)
	}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completions")
	}
}

func (c *collector) result(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[id]
}

func TestSubmitDeliversResult(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	c := newCollector(1)

	q.Submit(context.Background(), "J1", "read_file", func(context.Context) (string, error) {
		return "file contents here", nil
	}, c.complete)

	c.wait(t)
	if got := c.result("J1"); got != "file contents here" {
		t.Errorf("result = %q", got)
	}
	if q.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", q.ActiveCount())
	}
}

func TestSubmitWrapsError(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	c := newCollector(1)

	q.Submit(context.Background(), "J2", "web_search", func(context.Context) (string, error) {
		return "", errors.New("connection refused")
	}, c.complete)

	c.wait(t)
	want := "Background job J2 encountered an error: connection refused"
	if got := c.result("J2"); got != want {
		t.Errorf("result = %q, want %q", got, want)
	}
}

func TestSubmitRecoversPanic(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	c := newCollector(1)

	q.Submit(context.Background(), "J3", "scan", func(context.Context) (string, error) {
		panic("boom")
	}, c.complete)

	c.wait(t)
	got := c.result("J3")
	if !strings.HasPrefix(got, "Background job J3 encountered an error: panic:") {
		t.Errorf("result = %q", got)
	}
}

func TestCancelAll(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	c := newCollector(2)

	block := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	q.Submit(context.Background(), "J4", "read_file", block, c.complete)
	q.Submit(context.Background(), "J5", "read_file", block, c.complete)

	for q.ActiveCount() != 2 {
		time.Sleep(time.Millisecond)
	}
	q.CancelAll()
	c.wait(t)
	q.Wait()

	for _, id := range []string{"J4", "J5"} {
		want := "Job " + id + " was cancelled before completion."
		if got := c.result(id); got != want {
			t.Errorf("result(%s) = %q, want %q", id, got, want)
		}
	}
	if q.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after cancel", q.ActiveCount())
	}
}

func TestTimeoutCounting(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	c := newCollector(3)

	q.Submit(context.Background(), "J6", "read_file", func(context.Context) (string, error) {
		return "Error: request timed out after 30s", nil
	}, c.complete)
	q.Submit(context.Background(), "J7", "read_file", func(context.Context) (string, error) {
		return "RPC Timed Out", nil
	}, c.complete)
	q.Submit(context.Background(), "J8", "read_file", func(context.Context) (string, error) {
		return "all good", nil
	}, c.complete)

	c.wait(t)
	if got := q.TimeoutCount(); got != 2 {
		t.Errorf("TimeoutCount = %d, want 2", got)
	}
}

func TestCompletionFiresExactlyOnce(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	c := newCollector(1)

	q.Submit(context.Background(), "J9", "read_file", func(ctx context.Context) (string, error) {
		return "ok", nil
	}, c.complete)

	c.wait(t)
	q.Wait()
	time.Sleep(10 * time.Millisecond)
	if got := c.calls.Load(); got != 1 {
		t.Errorf("completion calls = %d, want 1", got)
	}
}
