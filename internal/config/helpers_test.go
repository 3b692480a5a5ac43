package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// sampleDoc is the stage 1 document shipped with ProteinChat, with paths
// relative to the test's base directory.
const sampleDoc = `model:
  arch: proteinchat
  model_type: pretrain_vicuna
  freeze_protein_encoder: False
  freeze_lp: False
  freeze_llama: True
  llama_model: "weights/vicuna-13b"
  prompt: ""
  max_txt_len: 256
  end_sym: "###"
  low_resource: False
  embedding_agg: 1
  peft_ckpt: ''
  stage1_ckpt: ''

datasets:
  seq:
    data_type: protein
    build_info:
      train:
        storage: data/qa_all.json

run:
  task: protein_text_pretrain
  lr_sched: "linear_warmup_cosine_lr"
  init_lr: 1e-4
  min_lr: 1e-5
  warmup_lr: 1e-6
  accum_grad_iters: 8
  weight_decay: 0.05
  max_epoch: 10
  iters_per_epoch: 5000
  batch_size_train: 1
  batch_size_eval: 1
  num_workers: 12
  warmup_steps: 5000
  seed: 42
  output_dir: "output/proteinchat_stage1"
  amp: True
  resume_ckpt_path: null
  printable: False
  evaluate: False
  train_splits: ["train"]
  device: "cuda"
  world_size: 1
  dist_url: "env://"
  distributed: True
  use_dist_eval_sampler: False
`

// fixture lays out the files the sample document references and returns
// the base directory.
func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "weights", "vicuna-13b"), 0o755); err != nil {
		t.Fatalf("mkdir weights: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatalf("mkdir data: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data", "qa_all.json"), []byte("[]"), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return dir
}

// writeDoc writes doc into dir, applying old/new replacement pairs first.
func writeDoc(t *testing.T, dir, doc string, replacements ...string) string {
	t.Helper()
	if len(replacements)%2 != 0 {
		t.Fatalf("replacements must be old/new pairs")
	}
	for i := 0; i < len(replacements); i += 2 {
		if !strings.Contains(doc, replacements[i]) {
			t.Fatalf("replacement target %q not in document", replacements[i])
		}
		doc = strings.Replace(doc, replacements[i], replacements[i+1], 1)
	}
	path := filepath.Join(dir, "train.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func loadSample(t *testing.T, replacements ...string) (*Config, error) {
	t.Helper()
	dir := fixture(t)
	return Load(writeDoc(t, dir, sampleDoc, replacements...), WithBaseDir(dir))
}

func mustLoadSample(t *testing.T, replacements ...string) *Config {
	t.Helper()
	cfg, err := loadSample(t, replacements...)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return cfg
}
