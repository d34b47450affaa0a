package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps an index in sync with file system changes.
type Watcher struct {
	idx     *Index
	watcher *fsnotify.Watcher

	// OnChange, when set, is called after a path was re-indexed or removed.
	OnChange func(rel string, removed bool)
}

// NewWatcher watches every non-ignored directory of the index's work dir.
func NewWatcher(idx *Index) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{idx: idx, watcher: fw}
	if err := w.addTree(idx.workDir); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.idx.workDir, path)
		if rel != "." && w.idx.skip(rel, true) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.idx.logger.Warn("watch_error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.idx.workDir, event.Name)
	if err != nil {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if err := w.idx.Delete(rel); err != nil {
			w.idx.logger.Warn("index_delete_failed", map[string]interface{}{"path": rel, "error": err.Error()})
			return
		}
		w.notify(rel, true)
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if !w.idx.skip(rel, true) {
				w.addTree(event.Name)
			}
			return
		}
		if w.idx.skip(rel, false) {
			return
		}
		if err := w.idx.UpsertFile(rel); err != nil {
			w.idx.logger.Warn("index_update_failed", map[string]interface{}{"path": rel, "error": err.Error()})
			return
		}
		w.notify(rel, false)
	}
}

func (w *Watcher) notify(rel string, removed bool) {
	w.idx.logger.Debug("index_updated", map[string]interface{}{"path": rel, "removed": removed})
	if w.OnChange != nil {
		w.OnChange(filepath.ToSlash(rel), removed)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
