package vad

import (
	"testing"

	vadprovider "github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad"
	vadmock "github.com/Radix-Obsidian/Voco-ai/pkg/provider/vad/mock"
)

// feedWindows pushes n full detector windows through the streamer.
func feedWindows(t *testing.T, s *Streamer, n int) {
	t.Helper()
	for range n {
		if err := s.Feed(make([]byte, vadprovider.FrameBytes)); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
}

func newStreamer(t *testing.T, probs []float64, cfg Config) (*Streamer, *vadmock.Session) {
	t.Helper()
	sess := &vadmock.Session{Probabilities: probs}
	s, err := NewStreamer(&vadmock.Model{Session: sess}, cfg)
	if err != nil {
		t.Fatalf("NewStreamer: %v", err)
	}
	return s, sess
}

func TestSpeechOnsetFiresOncePerTurn(t *testing.T) {
	t.Parallel()

	// 10 speech windows; onset needs 2.
	var onsets int
	s, _ := newStreamer(t, []float64{0.9}, Config{
		OnSpeechOnset: func() { onsets++ },
	})

	feedWindows(t, s, 10)
	if onsets != 1 {
		t.Errorf("onsets = %d, want 1", onsets)
	}
	if !s.Speaking() {
		t.Error("Speaking() = false, want true")
	}
}

func TestSingleSpeechWindowDoesNotTriggerOnset(t *testing.T) {
	t.Parallel()

	var onsets int
	s, _ := newStreamer(t, []float64{0.9, 0.1, 0.1, 0.1}, Config{
		OnSpeechOnset: func() { onsets++ },
	})

	feedWindows(t, s, 4)
	if onsets != 0 {
		t.Errorf("onsets = %d, want 0", onsets)
	}
}

func TestTurnEndFiresExactlyOncePerSpeechRun(t *testing.T) {
	t.Parallel()

	// 5 speech windows, then silence forever.
	probs := make([]float64, 0, 60)
	for range 5 {
		probs = append(probs, 0.9)
	}
	probs = append(probs, 0.1)

	var turnEnds int
	s, _ := newStreamer(t, probs, Config{
		SilenceFrames: 10,
		OnTurnEnd:     func() { turnEnds++ },
	})

	feedWindows(t, s, 5+30)
	if turnEnds != 1 {
		t.Errorf("turnEnds = %d, want 1", turnEnds)
	}
	if s.Speaking() {
		t.Error("Speaking() = true after turn end")
	}
}

func TestNoTurnEndWithoutSpeech(t *testing.T) {
	t.Parallel()

	var turnEnds int
	s, _ := newStreamer(t, []float64{0.1}, Config{
		SilenceFrames: 5,
		OnTurnEnd:     func() { turnEnds++ },
	})

	feedWindows(t, s, 50)
	if turnEnds != 0 {
		t.Errorf("turnEnds = %d, want 0", turnEnds)
	}
}

func TestOnsetCanFireAgainAfterTurnEnd(t *testing.T) {
	t.Parallel()

	// Speech, silence to end the turn, speech again.
	probs := []float64{0.9, 0.9, 0.9}
	for range 5 {
		probs = append(probs, 0.1)
	}
	probs = append(probs, 0.9, 0.9, 0.9)

	var onsets, turnEnds int
	s, _ := newStreamer(t, probs, Config{
		SilenceFrames: 5,
		OnSpeechOnset: func() { onsets++ },
		OnTurnEnd:     func() { turnEnds++ },
	})

	feedWindows(t, s, len(probs))
	if onsets != 2 {
		t.Errorf("onsets = %d, want 2", onsets)
	}
	if turnEnds != 1 {
		t.Errorf("turnEnds = %d, want 1", turnEnds)
	}
}

func TestFeedReframesPartialChunks(t *testing.T) {
	t.Parallel()

	s, sess := newStreamer(t, []float64{0.1}, Config{})

	// 3 windows delivered as unaligned chunks.
	total := vadprovider.FrameBytes * 3
	chunk := total / 5
	fed := 0
	for fed < total {
		n := min(chunk, total-fed)
		if err := s.Feed(make([]byte, n)); err != nil {
			t.Fatalf("Feed: %v", err)
		}
		fed += n
	}

	if got := len(sess.Frames); got != 3 {
		t.Errorf("scored windows = %d, want 3", got)
	}
	for i, f := range sess.Frames {
		if len(f) != vadprovider.FrameBytes {
			t.Errorf("window %d size = %d, want %d", i, len(f), vadprovider.FrameBytes)
		}
	}
}

func TestResetClearsStateAndModel(t *testing.T) {
	t.Parallel()

	s, sess := newStreamer(t, []float64{0.9}, Config{})
	feedWindows(t, s, 5)
	if !s.Speaking() {
		t.Fatal("expected speaking before reset")
	}

	s.Reset()
	if s.Speaking() {
		t.Error("Speaking() = true after Reset")
	}
	if sess.ResetCount != 1 {
		t.Errorf("model ResetCount = %d, want 1", sess.ResetCount)
	}
}

func TestConfigurableSilenceFrames(t *testing.T) {
	t.Parallel()

	probs := []float64{0.9, 0.9, 0.1}
	var turnEnds int
	s, _ := newStreamer(t, probs, Config{
		SilenceFrames: 3,
		OnTurnEnd:     func() { turnEnds++ },
	})

	feedWindows(t, s, 4)
	if turnEnds != 0 {
		t.Fatalf("turnEnds = %d before threshold, want 0", turnEnds)
	}
	feedWindows(t, s, 1)
	if turnEnds != 1 {
		t.Errorf("turnEnds = %d at threshold, want 1", turnEnds)
	}
}
