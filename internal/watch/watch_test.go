package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevant(t *testing.T) {
	assert.True(t, relevant(fsnotify.Event{Name: "/c/kinds.hcl", Op: fsnotify.Write}, ".hcl"))
	assert.True(t, relevant(fsnotify.Event{Name: "/c/kinds.hcl", Op: fsnotify.Remove}, ".hcl"))
	assert.False(t, relevant(fsnotify.Event{Name: "/c/kinds.hcl", Op: fsnotify.Chmod}, ".hcl"))
	assert.False(t, relevant(fsnotify.Event{Name: "/c/.kinds.hcl.swp", Op: fsnotify.Write}, ".hcl"))
	assert.False(t, relevant(fsnotify.Event{Name: "/c/readme.md", Op: fsnotify.Write}, ".hcl"))
}

func TestRun_ReloadsOncePerBurst(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var calls [][]string
	w := New(dir, ".hcl", 50*time.Millisecond, func(_ context.Context, changed []string) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, changed)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	for i := range 3 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kinds.hcl"), []byte{byte('a' + i)}, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{filepath.Join(dir, "kinds.hcl")}, calls[0])
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRun_MissingRoot(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), ".hcl", 0, func(context.Context, []string) error { return nil })
	assert.Error(t, w.Run(context.Background()))
}
