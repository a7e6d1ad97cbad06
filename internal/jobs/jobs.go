// Package jobs runs tool work in the background so the conversational loop
// never blocks on a slow RPC. Each job reports back exactly once through its
// completion callback, whether it succeeded, failed, panicked, or was
// cancelled at session teardown.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// CompletionFunc receives the final result text of a job. It is called
// exactly once per submitted job, from the job's goroutine.
type CompletionFunc func(jobID, toolName, result string)

// Queue tracks in-flight background jobs for one session.
type Queue struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup

	timeouts atomic.Int64
	logger   *slog.Logger
}

// Option customises a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// NewQueue creates an empty job queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		active: make(map[string]context.CancelFunc),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Submit starts run in its own goroutine. The context passed to run is
// cancelled by CancelAll. done always fires, with one of:
//
//   - the run result on success
//   - "Job <id> was cancelled before completion." on cancellation
//   - "Background job <id> encountered an error: <err>" on failure or panic
//
// Results containing "timed out" bump the session timeout counter.
func (q *Queue) Submit(ctx context.Context, jobID, toolName string, run func(context.Context) (string, error), done CompletionFunc) {
	jctx, cancel := context.WithCancel(ctx)

	q.mu.Lock()
	q.active[jobID] = cancel
	q.mu.Unlock()
	q.wg.Add(1)

	go func() {
		defer q.wg.Done()
		defer cancel()

		result := q.execute(jctx, jobID, run)

		q.mu.Lock()
		delete(q.active, jobID)
		q.mu.Unlock()

		if strings.Contains(strings.ToLower(result), "timed out") {
			q.timeouts.Add(1)
		}
		done(jobID, toolName, result)
	}()
}

func (q *Queue) execute(ctx context.Context, jobID string, run func(context.Context) (string, error)) (result string) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("background job panicked", "job_id", jobID, "panic", r)
			result = fmt.Sprintf("Background job %s encountered an error: panic: %v", jobID, r)
		}
	}()

	out, err := run(ctx)
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled)):
		return fmt.Sprintf("Job %s was cancelled before completion.", jobID)
	case err != nil:
		return fmt.Sprintf("Background job %s encountered an error: %v", jobID, err)
	default:
		return out
	}
}

// CancelAll cancels every in-flight job. Completion callbacks still fire with
// the cancellation result.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(q.active))
	for _, c := range q.active {
		cancels = append(cancels, c)
	}
	q.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// Wait blocks until every submitted job has completed.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// ActiveCount returns the number of in-flight jobs.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// TimeoutCount returns how many jobs finished with a timed-out result.
func (q *Queue) TimeoutCount() int64 {
	return q.timeouts.Load()
}
