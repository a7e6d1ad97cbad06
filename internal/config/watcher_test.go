package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Radix-Obsidian/Voco-ai/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  llm_full:
    name: anthropic
  tts:
    name: cartesia
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  llm_full:
    name: anthropic
  tts:
    name: cartesia
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voco.yaml")
	writeFile(t, path, watcherValidYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("LogLevel = %q", got)
	}
}

func TestWatcherInitialLoadFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voco.yaml")
	writeFile(t, path, watcherInvalidYAML)

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher accepted an invalid config")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voco.yaml")
	writeFile(t, path, watcherValidYAML)

	var mu sync.Mutex
	var gotNew *config.Config
	changed := make(chan struct{}, 1)

	w, err := config.NewWatcher(path, func(_, new *config.Config) {
		mu.Lock()
		gotNew = new
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Backdate the mtime so the rewrite is guaranteed to look newer.
	old := time.Now().Add(-time.Hour)
	os.Chtimes(path, old, old)
	writeFile(t, path, watcherUpdatedYAML)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("change never detected")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotNew.Server.LogLevel != config.LogDebug {
		t.Errorf("new LogLevel = %q", gotNew.Server.LogLevel)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("Current not updated")
	}
}

func TestWatcherKeepsOldConfigOnInvalidUpdate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voco.yaml")
	writeFile(t, path, watcherValidYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	old := time.Now().Add(-time.Hour)
	os.Chtimes(path, old, old)
	writeFile(t, path, watcherInvalidYAML)

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current LogLevel = %q, want the last valid config", got)
	}
}
