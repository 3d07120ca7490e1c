package automation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce absorbs the burst of events an editor save produces.
const watchDebounce = 250 * time.Millisecond

// WatchDocumentFile calls onChange with the re-parsed document whenever the
// file at path changes, until ctx is cancelled. A file that fails to parse
// is logged and ignored; the previous document stays live.
//
// The directory is watched rather than the file so editors that replace the
// file by rename keep being followed.
func WatchDocumentFile(ctx context.Context, path string, onChange func(*Document), logger Logger) error {
	if logger == nil {
		logger = noopLogger{}
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating document watcher: %w", err)
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		w.Close() //nolint:errcheck // already failing
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		doc, err := LoadDocumentFile(path)
		if err != nil {
			logger.Warn("node document change ignored", "path", path, "error", err)
			return
		}
		logger.Info("node document changed", "path", path, "instances", len(doc.Instances))
		onChange(doc)
	}
	debounce := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, reload)
	}

	go func() {
		defer w.Close() //nolint:errcheck // best effort on shutdown
		defer func() {
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("node document watcher error", "error", err)
			}
		}
	}()
	return nil
}
