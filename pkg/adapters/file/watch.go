package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch follows external edits of the document until ctx is cancelled.
// The parent directory is watched so editors that replace the file by rename are seen.
// Bursts of filesystem events collapse into a single Reload.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			s.logger.Warn("Watcher close failed", "err", err)
		}
	}()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	throttle := newReloadThrottle(s.debounce, func() {
		events, err := s.Reload()
		if err != nil {
			// Usually a half-written file; the next write event retries.
			s.logger.Warn("Bookmark file reload failed", "path", s.path, "err", err)
			return
		}
		if len(events) > 0 {
			s.logger.Debug("Bookmark file changed externally", "path", s.path, "events", len(events))
		}
	})
	defer throttle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watcher error", "path", s.path, "err", err)
			throttle.Trigger()
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			throttle.Trigger()
		}
	}
}

// reloadThrottle coalesces rapid change notifications into one call per burst.
type reloadThrottle struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	fn    func()
}

func newReloadThrottle(delay time.Duration, fn func()) *reloadThrottle {
	return &reloadThrottle{delay: delay, fn: fn}
}

func (t *reloadThrottle) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		t.timer = time.AfterFunc(t.delay, t.flush)
	}
}

func (t *reloadThrottle) flush() {
	t.mu.Lock()
	t.timer = nil
	t.mu.Unlock()
	t.fn()
}

func (t *reloadThrottle) Stop() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
}
