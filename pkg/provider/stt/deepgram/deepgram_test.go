package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const okBody = `{"results":{"channels":[{"alternatives":[{"transcript":"hello world"}]}]}}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New("test-key", WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestTranscribeOnce(t *testing.T) {
	t.Parallel()

	var gotAuth, gotContentType, gotQuery atomic.Value
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotContentType.Store(r.Header.Get("Content-Type"))
		gotQuery.Store(r.URL.RawQuery)
		w.Write([]byte(okBody))
	})

	text, err := p.TranscribeOnce(context.Background(), make([]byte, 6400))
	if err != nil {
		t.Fatalf("TranscribeOnce: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
	if gotAuth.Load() != "Token test-key" {
		t.Errorf("Authorization = %q", gotAuth.Load())
	}
	if gotContentType.Load() != "audio/raw" {
		t.Errorf("Content-Type = %q", gotContentType.Load())
	}
	q := gotQuery.Load().(string)
	for _, want := range []string{"encoding=linear16", "sample_rate=16000", "channels=1"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
}

func TestTranscribeOnceRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(okBody))
	})

	text, err := p.TranscribeOnce(context.Background(), make([]byte, 100))
	if err != nil {
		t.Fatalf("TranscribeOnce: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestTranscribeOnceDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	if _, err := p.TranscribeOnce(context.Background(), make([]byte, 100)); err == nil {
		t.Fatal("want error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestTranscribeOnceGivesUpAfterThreeAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := p.TranscribeOnce(context.Background(), make([]byte, 100)); err == nil {
		t.Fatal("want error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestTranscribeOnceEmptyInput(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for empty input")
	})
	text, err := p.TranscribeOnce(context.Background(), nil)
	if err != nil || text != "" {
		t.Errorf("got (%q, %v), want empty", text, err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("want error for empty api key")
	}
}
