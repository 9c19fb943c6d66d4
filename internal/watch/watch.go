// Package watch reloads the node kind catalog when its files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/fsutil"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 200 * time.Millisecond

// ReloadFunc is called once per settled burst of changes.
type ReloadFunc func(ctx context.Context, changed []string) error

// Watcher watches a directory tree for changes to files with one extension.
type Watcher struct {
	root      string
	extension string
	debounce  time.Duration
	reload    ReloadFunc
}

// New creates a watcher over root. It does nothing until Run is called.
func New(root, extension string, debounce time.Duration, reload ReloadFunc) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, extension: extension, debounce: debounce, reload: reload}
}

// Run watches until ctx is cancelled. Reload failures are logged and do not
// stop the watcher; the previous catalog stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("root", w.root)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := addRecursive(fw, w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	logger.Info("Watching catalog for changes.", "debounce", w.debounce)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !fsutil.IsHidden(event.Name) {
					if err := addRecursive(fw, event.Name); err != nil {
						logger.Warn("Failed to watch new directory.", "path", event.Name, "error", err)
					}
					pending[event.Name] = struct{}{}
					timer.Reset(w.debounce)
					continue
				}
			}
			if !relevant(event, w.extension) {
				continue
			}
			logger.Debug("Catalog file event.", "path", event.Name, "op", event.Op.String())
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)
			if err := w.reload(ctx, changed); err != nil {
				logger.Error("Catalog reload failed; keeping previous kinds.", "error", err)
				continue
			}
			logger.Info("Catalog reloaded.", "changed", len(changed))
		}
	}
}

func relevant(event fsnotify.Event, extension string) bool {
	if !fsutil.HasExtension(event.Name, extension) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && fsutil.IsHidden(path) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
