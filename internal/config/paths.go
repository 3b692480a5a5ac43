package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Resolve returns p anchored at the config's base directory. Absolute paths
// and empty strings are returned unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// checkPaths verifies every filesystem reference the orchestrator will need
// before training starts.
func checkPaths(cfg *Config) error {
	var errs []error
	mustExist := func(field, p string) {
		if p == "" {
			return
		}
		if _, err := os.Stat(cfg.Resolve(p)); err != nil {
			errs = append(errs, pathErr(field, p, err))
		}
	}

	mustExist("model.llama_model", cfg.Model.LlamaModel)
	mustExist("model.stage1_ckpt", cfg.Model.Stage1Ckpt)
	mustExist("model.peft_ckpt", cfg.Model.PeftCkpt)
	for _, name := range cfg.DatasetNames() {
		ds := cfg.Datasets[name]
		for _, split := range ds.Splits() {
			mustExist(fmt.Sprintf("datasets.%s.build_info.%s.storage", name, split), ds.BuildInfo[split].Storage)
		}
	}
	mustExist("run.resume_ckpt_path", cfg.Run.ResumePath())
	mustExist("model.alphafold_use_precomputed_alignments", cfg.Model.AlphaFoldPrecomputedAlignments)
	mustExist("model.alphafold_experiment_config_json", cfg.Model.AlphaFoldExperimentConfigJSON)
	if d := cfg.Model.AlphaFoldOutputDir; d != "" {
		if err := checkOutputDir(cfg.Resolve(d)); err != nil {
			errs = append(errs, pathErr("model.alphafold_output_dir", d, err))
		}
	}
	if err := checkOutputDir(cfg.Resolve(cfg.Run.OutputDir)); err != nil {
		errs = append(errs, pathErr("run.output_dir", cfg.Run.OutputDir, err))
	}
	return errors.Join(errs...)
}

// checkOutputDir accepts an existing writable directory, or a path whose
// nearest existing ancestor is a writable directory. Nothing is created.
func checkOutputDir(dir string) error {
	if dir == "" {
		return errors.New("empty path")
	}
	p := filepath.Clean(dir)
	for {
		st, err := os.Stat(p)
		switch {
		case err == nil:
			if !st.IsDir() {
				return fmt.Errorf("%s is not a directory", p)
			}
			return writable(p)
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return fmt.Errorf("no existing ancestor of %s", dir)
		}
		p = parent
	}
}
