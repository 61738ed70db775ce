package sync

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/graphsyncd/internal/config"
	"github.com/standardbeagle/graphsyncd/internal/debug"
)

// Watcher is the default adapter for the "file-watcher interface
// consumed" of spec.md §6: it walks cfg.WatchDir recursively (fsnotify
// itself watches only the directories it's told about), filters by
// cfg.InstrumentationExcludePatterns, and feeds every (kind, path) tuple
// into a Coordinator. The engine never assumes fsnotify's Rename op
// means an atomic rename; a Rename event is reported as a deletion so
// the Coordinator's own inference (via Created/Deleted) has a chance to
// pair it with the create that follows, per spec.md §4.4/§6.
type Watcher struct {
	fsw  *fsnotify.Watcher
	cfg  *config.Config
	coord *Coordinator
}

// NewWatcher creates a Watcher and adds recursive watches under
// cfg.WatchDir.
func NewWatcher(cfg *config.Config, coord *Coordinator) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, cfg: cfg, coord: coord}
	if err := w.addWatches(cfg.WatchDir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addWatches(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			debug.LogSync("watcher: failed to add %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.cfg.WatchDir, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.cfg.InstrumentationExcludePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Run drains fsnotify events into the Coordinator until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			debug.LogSync("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if w.excluded(event.Name) {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			w.addWatches(event.Name)
		}
		return
	}

	var kind EventKind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = Created
	case event.Op&fsnotify.Write != 0:
		kind = Modified
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		kind = Deleted
	default:
		return
	}

	if err := w.coord.OnEvent(ctx, kind, event.Name, ""); err != nil {
		debug.LogSync("on_event(%v, %s) failed: %v", kind, event.Name, err)
	}
}

// Close releases the underlying fsnotify watcher outside of Run (e.g.
// when the caller never started the event loop).
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
