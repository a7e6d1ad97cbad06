package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PrimaryFirst(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "primary" {
		t.Errorf("called = %q, want primary", called)
	}
}

func TestFallbackGroup_TriesEntriesInOrder(t *testing.T) {
	fg := NewFallbackGroup("a", "a", FallbackConfig{})
	fg.AddFallback("b", "b")
	fg.AddFallback("c", "c")

	var order []string
	err := fg.Execute(func(v string) error {
		order = append(order, v)
		if v != "c" {
			return errBackend
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("order = %v", order)
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	fg := NewFallbackGroup("a", "a", FallbackConfig{})
	fg.AddFallback("b", "b")

	err := fg.Execute(func(string) error { return errBackend })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	fg := NewFallbackGroup("flaky", "flaky", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fg.AddFallback("steady", "steady")

	// Trip the primary's breaker.
	_ = fg.Execute(func(v string) error {
		if v == "flaky" {
			return errBackend
		}
		return nil
	})

	var called []string
	err := fg.Execute(func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(called) != 1 || called[0] != "steady" {
		t.Errorf("called = %v, want only the fallback", called)
	}
}

func TestExecuteWithResult_ReturnsFirstSuccess(t *testing.T) {
	fg := NewFallbackGroup(1, "one", FallbackConfig{})
	fg.AddFallback("two", 2)

	got, err := ExecuteWithResult(fg, func(v int) (int, error) {
		if v == 1 {
			return 0, errBackend
		}
		return v * 10, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != 20 {
		t.Errorf("got = %d, want 20", got)
	}
}
