package config

import (
	"os"
	"time"
)

// CheckpointRef points at a checkpoint the orchestrator should load.
type CheckpointRef struct {
	// Field is the document key the reference came from.
	Field   string    `json:"field"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ResolveResume returns the checkpoint to resume from, or nil for a fresh
// run. Null and the empty string both mean a fresh run. A declared path
// that does not exist is a PathError.
func ResolveResume(cfg *Config) (*CheckpointRef, error) {
	if cfg == nil {
		return nil, nil
	}
	return ResolveCheckpoint(cfg, "run.resume_ckpt_path", cfg.Run.ResumePath())
}

// ResolveCheckpoint stats an optional checkpoint path. Empty means absent.
func ResolveCheckpoint(cfg *Config, field, p string) (*CheckpointRef, error) {
	if p == "" {
		return nil, nil
	}
	return statCheckpoint(cfg, field, p)
}

func statCheckpoint(cfg *Config, field, p string) (*CheckpointRef, error) {
	resolved := cfg.Resolve(p)
	st, err := os.Stat(resolved)
	if err != nil {
		return nil, pathErr(field, p, err)
	}
	return &CheckpointRef{
		Field:   field,
		Path:    resolved,
		Size:    st.Size(),
		ModTime: st.ModTime(),
	}, nil
}
