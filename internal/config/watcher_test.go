package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadOnChange(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, "quality:\n  relevance_gate: 0.65\n")

	w, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(configPath, []byte("quality:\n  relevance_gate: 0.75\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case reload := <-w.Reloads():
		if reload.Config.Quality.RelevanceGate != 0.75 {
			t.Errorf("RelevanceGate = %v, want 0.75", reload.Config.Quality.RelevanceGate)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload received after config change")
	}
}

func TestWatcher_DropsInvalidConfig(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, "quality:\n  relevance_gate: 0.65\n")

	w, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A gate outside (0,1) fails validation; no reload should surface.
	if err := os.WriteFile(configPath, []byte("quality:\n  relevance_gate: 5.0\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case reload := <-w.Reloads():
		t.Errorf("unexpected reload with gate %v", reload.Config.Quality.RelevanceGate)
	case <-time.After(500 * time.Millisecond):
		// Expected: invalid config was dropped.
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, "server:\n  http_port: 9300\n")

	w, err := NewWatcher(configPath)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	w.Stop()
	w.Stop() // second stop must not panic
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher(""); err == nil {
		t.Error("NewWatcher(\"\") should fail")
	}
}
