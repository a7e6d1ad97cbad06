package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeServer accepts one WebSocket connection, decodes the synthesis request,
// and runs respond with the connection.
func fakeServer(t *testing.T, respond func(ctx context.Context, conn *websocket.Conn, req request)) *Provider {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		_, msg, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		var req request
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		respond(ctx, conn, req)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	p, err := New("test-key", WithEndpoint(wsURL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func TestSynthesizeStreamChunks(t *testing.T) {
	t.Parallel()

	pcm1 := []byte{1, 2, 3, 4}
	pcm2 := []byte{5, 6, 7, 8}
	p := fakeServer(t, func(ctx context.Context, conn *websocket.Conn, req request) {
		if req.Transcript != "hello there" {
			t.Errorf("transcript = %q", req.Transcript)
		}
		if req.OutputFormat.Encoding != "pcm_s16le" || req.OutputFormat.SampleRate != 16000 {
			t.Errorf("output format = %+v", req.OutputFormat)
		}
		writeJSON(ctx, conn, response{Type: "chunk", Data: base64.StdEncoding.EncodeToString(pcm1)})
		conn.Write(ctx, websocket.MessageBinary, pcm2)
		writeJSON(ctx, conn, response{Type: "done", Done: true})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	audio, errs, err := p.SynthesizeStream(ctx, "hello there")
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var got [][]byte
	for c := range audio {
		got = append(got, c)
	}
	if err := <-errs; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(got) != 2 || string(got[0]) != string(pcm1) || string(got[1]) != string(pcm2) {
		t.Errorf("chunks = %v", got)
	}
}

func TestSynthesizeStreamServerError(t *testing.T) {
	t.Parallel()

	p := fakeServer(t, func(ctx context.Context, conn *websocket.Conn, req request) {
		writeJSON(ctx, conn, response{Type: "error", Error: "voice not found"})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	audio, errs, err := p.SynthesizeStream(ctx, "hi")
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	for range audio {
	}
	streamErr := <-errs
	if streamErr == nil || !strings.Contains(streamErr.Error(), "voice not found") {
		t.Errorf("stream error = %v", streamErr)
	}
}

func TestSynthesizeStreamCancellation(t *testing.T) {
	t.Parallel()

	p := fakeServer(t, func(ctx context.Context, conn *websocket.Conn, req request) {
		// Never send done; wait for the client to vanish.
		<-ctx.Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	audio, errs, err := p.SynthesizeStream(ctx, "hi")
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	cancel()

	for range audio {
	}
	// Cancellation must not surface as a stream error.
	if err := <-errs; err != nil {
		t.Errorf("stream error after cancel = %v", err)
	}
}

func TestSynthesizeStreamRejectsEmptyText(t *testing.T) {
	t.Parallel()

	p, err := New("k")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := p.SynthesizeStream(context.Background(), ""); err == nil {
		t.Fatal("want error for empty text")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("want error for empty api key")
	}
}
