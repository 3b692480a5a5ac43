package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/samcharles93/proteintune/internal/logger"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher signals changes to a single document. It watches the parent
// directory so editors that replace the file by rename are still seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	path     string
	debounce time.Duration
	log      logger.Logger
}

// NewWatcher starts watching the directory containing path.
func NewWatcher(path string, log logger.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Watcher{fs: fsw, path: abs, debounce: defaultDebounce, log: log}, nil
}

// Run calls onChange after writes to the document settle. It blocks until
// ctx is done and always closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	defer func() { _ = w.fs.Close() }()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.log.Debug("config file changed", "path", w.path)
			onChange()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", "error", err)
		}
	}
}
