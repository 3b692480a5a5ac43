package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samcharles93/proteintune/internal/logger"
)

// Holder publishes the current Config to any number of readers. Reloads are
// serialized; readers never block and always see a fully validated value.
type Holder struct {
	current atomic.Pointer[Config]

	path string
	opts []Option
	log  logger.Logger

	reloadMu   sync.Mutex
	callbackMu sync.RWMutex
	callbacks  []func(*Config)
	rejects    []func(error)
}

// NewHolder loads path and returns a Holder serving it.
func NewHolder(path string, log logger.Logger, opts ...Option) (*Holder, error) {
	if log == nil {
		log = logger.Discard()
	}
	h := &Holder{
		path: path,
		opts: append([]Option(nil), opts...),
		log:  log.With("component", "config", "path", path),
	}
	cfg, err := Load(path, h.opts...)
	if err != nil {
		return nil, err
	}
	h.current.Store(cfg)
	return h, nil
}

// Current returns the active configuration. Callers must not mutate it.
func (h *Holder) Current() *Config {
	return h.current.Load()
}

// Path returns the document path the holder reloads from.
func (h *Holder) Path() string { return h.path }

// OnChange registers fn to run after each successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.callbackMu.Lock()
	defer h.callbackMu.Unlock()
	h.callbacks = append(h.callbacks, fn)
}

// OnReject registers fn to run after each failed reload.
func (h *Holder) OnReject(fn func(error)) {
	h.callbackMu.Lock()
	defer h.callbackMu.Unlock()
	h.rejects = append(h.rejects, fn)
}

// Reload re-reads the document. On failure the previous value stays active
// and the error is returned.
func (h *Holder) Reload() (*Config, error) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	cfg, err := Load(h.path, h.opts...)
	if err != nil {
		h.log.Warn("reload rejected, keeping previous config", "error", err)
		h.callbackMu.RLock()
		rejects := make([]func(error), len(h.rejects))
		copy(rejects, h.rejects)
		h.callbackMu.RUnlock()
		for _, fn := range rejects {
			if fn != nil {
				fn(err)
			}
		}
		return h.current.Load(), err
	}
	h.current.Store(cfg)
	stage, _ := ValidateStageConsistency(cfg)
	h.log.Info("config reloaded", "stage", stage.String())

	h.callbackMu.RLock()
	callbacks := make([]func(*Config), len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.callbackMu.RUnlock()
	for _, fn := range callbacks {
		if fn != nil {
			fn(cfg)
		}
	}
	return cfg, nil
}

// Watch reloads on every change to the document until ctx is done.
func (h *Holder) Watch(ctx context.Context) error {
	w, err := NewWatcher(h.path, h.log)
	if err != nil {
		return err
	}
	err = w.Run(ctx, func() {
		_, _ = h.Reload()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("watch %s: %w", h.path, err)
	}
	return nil
}
