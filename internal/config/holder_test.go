package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var stage2Doc = strings.NewReplacer(
	"freeze_protein_encoder: False", "freeze_protein_encoder: True",
	"freeze_lp: False", "freeze_lp: True",
	"freeze_llama: True", "freeze_llama: False",
).Replace(sampleDoc)

func TestHolderReload(t *testing.T) {
	t.Parallel()
	dir := fixture(t)
	path := writeDoc(t, dir, sampleDoc)

	h, err := NewHolder(path, nil, WithBaseDir(dir))
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	first := h.Current()
	if stage, _ := ValidateStageConsistency(first); stage != StageOne {
		t.Fatalf("initial stage: got %s", stage)
	}

	var seen []*Config
	var rejected []error
	h.OnChange(func(c *Config) { seen = append(seen, c) })
	h.OnReject(func(err error) { rejected = append(rejected, err) })

	writeDoc(t, dir, sampleDoc, "max_epoch: 10", "max_epoch: 0")
	got, err := h.Reload()
	if !errors.Is(err, ErrRange) {
		t.Fatalf("expected range error on reload, got %v", err)
	}
	if got != first || h.Current() != first {
		t.Fatal("failed reload must keep the previous config")
	}
	if len(seen) != 0 {
		t.Fatal("callbacks must not run on failed reload")
	}
	if len(rejected) != 1 || !errors.Is(rejected[0], ErrRange) {
		t.Fatalf("expected one reject callback, got %v", rejected)
	}

	writeDoc(t, dir, stage2Doc)
	got, err = h.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if h.Current() != got || got == first {
		t.Fatal("successful reload must publish the new config")
	}
	if stage, _ := ValidateStageConsistency(got); stage != StageTwo {
		t.Fatalf("reloaded stage: got %s", stage)
	}
	if len(seen) != 1 || seen[0] != got {
		t.Fatalf("expected one callback with the new config, got %d", len(seen))
	}
}

func TestHolderRejectsInvalidInitialDocument(t *testing.T) {
	t.Parallel()
	dir := fixture(t)
	path := writeDoc(t, dir, sampleDoc, "batch_size_train: 1", "batch_size_train: 0")
	if _, err := NewHolder(path, nil, WithBaseDir(dir)); !errors.Is(err, ErrRange) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestHolderWatch(t *testing.T) {
	t.Parallel()
	dir := fixture(t)
	path := writeDoc(t, dir, sampleDoc)

	h, err := NewHolder(path, nil, WithBaseDir(dir))
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	reloaded := make(chan *Config, 1)
	var once sync.Once
	h.OnChange(func(c *Config) {
		once.Do(func() { reloaded <- c })
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte(stage2Doc), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case c := <-reloaded:
		if stage, _ := ValidateStageConsistency(c); stage != StageTwo {
			t.Fatalf("watched reload stage: got %s", stage)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watched reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}
