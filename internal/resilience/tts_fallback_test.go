package resilience

import (
	"context"
	"errors"
	"testing"

	ttsmock "github.com/Radix-Obsidian/Voco-ai/pkg/provider/tts/mock"
)

func drainStream(t *testing.T, audio <-chan []byte, errs <-chan error) ([][]byte, error) {
	t.Helper()
	var chunks [][]byte
	for c := range audio {
		chunks = append(chunks, c)
	}
	var streamErr error
	for e := range errs {
		streamErr = e
	}
	return chunks, streamErr
}

func TestTTSFallback_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{Chunks: [][]byte{{1, 2}, {3, 4}}}
	secondary := &ttsmock.Provider{Chunks: [][]byte{{9}}}

	f := NewTTSFallback(primary, "cartesia", FallbackConfig{})
	f.AddFallback("backup", secondary)

	audio, errs, err := f.SynthesizeStream(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	chunks, streamErr := drainStream(t, audio, errs)
	if streamErr != nil {
		t.Fatalf("stream error: %v", streamErr)
	}
	if len(chunks) != 2 {
		t.Errorf("chunks = %d, want 2", len(chunks))
	}
	if len(secondary.Calls) != 0 {
		t.Errorf("secondary called %d times, want 0", len(secondary.Calls))
	}
}

func TestTTSFallback_FailsOverOnStartError(t *testing.T) {
	primary := &ttsmock.Provider{StartErr: errors.New("websocket refused")}
	secondary := &ttsmock.Provider{Chunks: [][]byte{{7, 7}}}

	f := NewTTSFallback(primary, "cartesia", FallbackConfig{})
	f.AddFallback("backup", secondary)

	audio, errs, err := f.SynthesizeStream(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	chunks, _ := drainStream(t, audio, errs)
	if len(chunks) != 1 {
		t.Errorf("chunks = %d, want 1 from the fallback", len(chunks))
	}
}

func TestTTSFallback_MidStreamErrorIsNotRetried(t *testing.T) {
	primary := &ttsmock.Provider{
		Chunks:    [][]byte{{1}},
		StreamErr: errors.New("connection reset"),
	}
	secondary := &ttsmock.Provider{Chunks: [][]byte{{9}}}

	f := NewTTSFallback(primary, "cartesia", FallbackConfig{})
	f.AddFallback("backup", secondary)

	audio, errs, err := f.SynthesizeStream(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	_, streamErr := drainStream(t, audio, errs)
	if streamErr == nil {
		t.Fatal("expected the mid-stream error to surface")
	}
	if len(secondary.Calls) != 0 {
		t.Errorf("mid-stream failure must not trigger failover")
	}
}

func TestTTSFallback_AllFailed(t *testing.T) {
	f := NewTTSFallback(&ttsmock.Provider{StartErr: errors.New("down")}, "cartesia", FallbackConfig{})

	_, _, err := f.SynthesizeStream(context.Background(), "hello")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
