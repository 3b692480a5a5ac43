package config

import (
	"maps"
	"slices"
	"sort"
)

// Config is the typed view of a fine-tuning run document.
// A loaded Config is treated as immutable; use Clone to derive a variant.
//
// Keys whose yaml tag carries omitempty are optional. Every other key must be
// present in the document.
type Config struct {
	Model    ModelSpec              `yaml:"model" json:"model"`
	Datasets map[string]DatasetSpec `yaml:"datasets" json:"datasets" validate:"dive"`
	Run      RunSpec                `yaml:"run" json:"run"`

	// source is the file the config was loaded from, if any.
	source string
	// baseDir anchors relative paths.
	baseDir string
}

type ModelSpec struct {
	Arch      string `yaml:"arch" json:"arch" validate:"oneof=proteinchat"`
	ModelType string `yaml:"model_type" json:"model_type" validate:"required"`

	// Stage selects the freeze flags. When set, the individual flags become
	// optional and must agree with it if present.
	Stage *Stage `yaml:"stage,omitempty" json:"stage,omitempty" validate:"omitempty,oneof=1 2"`

	FreezeProteinEncoder *bool `yaml:"freeze_protein_encoder,omitempty" json:"freeze_protein_encoder,omitempty"`
	FreezeLP             *bool `yaml:"freeze_lp,omitempty" json:"freeze_lp,omitempty"`
	FreezeLlama          *bool `yaml:"freeze_llama,omitempty" json:"freeze_llama,omitempty"`
	FreezeStrEncoder     *bool `yaml:"freeze_str_encoder,omitempty" json:"freeze_str_encoder,omitempty"`

	LlamaModel   string       `yaml:"llama_model" json:"llama_model" validate:"required"`
	Prompt       string       `yaml:"prompt" json:"prompt"`
	MaxTxtLen    int          `yaml:"max_txt_len" json:"max_txt_len" validate:"gt=0"`
	EndSym       string       `yaml:"end_sym" json:"end_sym" validate:"required"`
	LowResource  bool         `yaml:"low_resource" json:"low_resource"`
	Device8Bit   int          `yaml:"device_8bit,omitempty" json:"device_8bit,omitempty" validate:"gte=0"`
	EmbeddingAgg EmbeddingAgg `yaml:"embedding_agg" json:"embedding_agg" validate:"oneof=1 2"`
	PeftCkpt     string       `yaml:"peft_ckpt,omitempty" json:"peft_ckpt,omitempty"`
	Stage1Ckpt   string       `yaml:"stage1_ckpt,omitempty" json:"stage1_ckpt,omitempty"`

	Lora *LoraSpec `yaml:"lora,omitempty" json:"lora,omitempty"`

	// Structure prediction feeding the structure encoder.
	AlphaFoldConfigPreset          string `yaml:"alphafold_config_preset,omitempty" json:"alphafold_config_preset,omitempty"`
	AlphaFoldOutputDir             string `yaml:"alphafold_output_dir,omitempty" json:"alphafold_output_dir,omitempty"`
	AlphaFoldModelDevice           string `yaml:"alphafold_model_device,omitempty" json:"alphafold_model_device,omitempty"`
	AlphaFoldPrecomputedAlignments string `yaml:"alphafold_use_precomputed_alignments,omitempty" json:"alphafold_use_precomputed_alignments,omitempty"`
	AlphaFoldExperimentConfigJSON  string `yaml:"alphafold_experiment_config_json,omitempty" json:"alphafold_experiment_config_json,omitempty"`
	AlphaFoldLongSequence          bool   `yaml:"alphafold_long_sequence_inference,omitempty" json:"alphafold_long_sequence_inference,omitempty"`
	AlphaFoldDeepSpeedEvoformer    bool   `yaml:"alphafold_use_deepspeed_evoformer_attention,omitempty" json:"alphafold_use_deepspeed_evoformer_attention,omitempty"`
}

const (
	defaultAlphaFoldPreset = "model_1_ptm"
	defaultAlphaFoldDevice = "cuda:0"
)

// AlphaFoldSettings is the resolved structure predictor configuration.
type AlphaFoldSettings struct {
	ConfigPreset           string `json:"config_preset"`
	OutputDir              string `json:"output_dir,omitempty"`
	ModelDevice            string `json:"model_device"`
	PrecomputedAlignments  string `json:"precomputed_alignments,omitempty"`
	ExperimentConfigJSON   string `json:"experiment_config_json,omitempty"`
	LongSequenceInference  bool   `json:"long_sequence_inference"`
	DeepSpeedEvoformerAttn bool   `json:"deepspeed_evoformer_attention"`
}

// AlphaFold returns the structure predictor settings with unset keys
// filled from their defaults. An unset output dir is left to the
// orchestrator.
func (m ModelSpec) AlphaFold() AlphaFoldSettings {
	s := AlphaFoldSettings{
		ConfigPreset:           m.AlphaFoldConfigPreset,
		OutputDir:              m.AlphaFoldOutputDir,
		ModelDevice:            m.AlphaFoldModelDevice,
		PrecomputedAlignments:  m.AlphaFoldPrecomputedAlignments,
		ExperimentConfigJSON:   m.AlphaFoldExperimentConfigJSON,
		LongSequenceInference:  m.AlphaFoldLongSequence,
		DeepSpeedEvoformerAttn: m.AlphaFoldDeepSpeedEvoformer,
	}
	if s.ConfigPreset == "" {
		s.ConfigPreset = defaultAlphaFoldPreset
	}
	if s.ModelDevice == "" {
		s.ModelDevice = defaultAlphaFoldDevice
	}
	return s
}

// LoraSpec configures the adapter attached to the language model when it is
// trainable. Zero values fall back to DefaultLora.
type LoraSpec struct {
	R             int      `yaml:"r,omitempty" json:"r,omitempty" validate:"omitempty,gt=0"`
	Alpha         int      `yaml:"alpha,omitempty" json:"alpha,omitempty" validate:"omitempty,gt=0"`
	Dropout       *float64 `yaml:"dropout,omitempty" json:"dropout,omitempty" validate:"omitempty,gte=0,lt=1"`
	TargetModules []string `yaml:"target_modules,omitempty" json:"target_modules,omitempty" validate:"dive,required"`
	Bias          string   `yaml:"bias,omitempty" json:"bias,omitempty" validate:"omitempty,oneof=none all lora_only"`
}

// DefaultLora mirrors the adapter ProteinChat attaches in stage 2.
func DefaultLora() LoraSpec {
	return LoraSpec{
		R:             8,
		Alpha:         16,
		Dropout:       Ptr(0.05),
		TargetModules: []string{"q_proj", "v_proj"},
		Bias:          "none",
	}
}

// EmbeddingAgg selects how per-residue encoder outputs are aggregated
// before projection into the language model.
type EmbeddingAgg int

const (
	EmbeddingPerResidue EmbeddingAgg = 1
	EmbeddingMean       EmbeddingAgg = 2
)

func (a EmbeddingAgg) String() string {
	switch a {
	case EmbeddingPerResidue:
		return "per-residue"
	case EmbeddingMean:
		return "mean"
	default:
		return "unknown"
	}
}

type DatasetSpec struct {
	DataType  string               `yaml:"data_type" json:"data_type" validate:"required"`
	BuildInfo map[string]SplitInfo `yaml:"build_info" json:"build_info" validate:"dive"`
}

type SplitInfo struct {
	Storage string `yaml:"storage" json:"storage" validate:"required"`
}

// Splits returns the declared split names in sorted order.
func (d DatasetSpec) Splits() []string {
	names := make([]string, 0, len(d.BuildInfo))
	for name := range d.BuildInfo {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type RunSpec struct {
	Task string `yaml:"task" json:"task" validate:"required"`

	// Optimizer and schedule
	LRSched        string   `yaml:"lr_sched" json:"lr_sched" validate:"oneof=linear_warmup_cosine_lr linear_warmup_step_lr constant_lr"`
	InitLR         float64  `yaml:"init_lr" json:"init_lr" validate:"gt=0"`
	MinLR          float64  `yaml:"min_lr" json:"min_lr" validate:"gte=0"`
	WarmupLR       float64  `yaml:"warmup_lr" json:"warmup_lr" validate:"gte=0"`
	LRDecayRate    *float64 `yaml:"lr_decay_rate,omitempty" json:"lr_decay_rate,omitempty" validate:"omitempty,gt=0,lte=1"`
	AccumGradIters *int     `yaml:"accum_grad_iters,omitempty" json:"accum_grad_iters,omitempty" validate:"omitempty,gt=0"`
	WeightDecay    float64  `yaml:"weight_decay" json:"weight_decay" validate:"gte=0"`
	WarmupSteps    int      `yaml:"warmup_steps" json:"warmup_steps" validate:"gte=0"`

	// Iteration accounting
	MaxEpoch           int  `yaml:"max_epoch" json:"max_epoch" validate:"gt=0"`
	ItersPerEpoch      *int `yaml:"iters_per_epoch,omitempty" json:"iters_per_epoch,omitempty" validate:"omitempty,gt=0"`
	MaxIters           *int `yaml:"max_iters,omitempty" json:"max_iters,omitempty" validate:"omitempty,gt=0"`
	ItersPerInnerEpoch *int `yaml:"iters_per_inner_epoch,omitempty" json:"iters_per_inner_epoch,omitempty" validate:"omitempty,gt=0"`

	// Batching
	BatchSizeTrain int `yaml:"batch_size_train" json:"batch_size_train" validate:"gt=0"`
	BatchSizeEval  int `yaml:"batch_size_eval" json:"batch_size_eval" validate:"gt=0"`
	NumWorkers     int `yaml:"num_workers" json:"num_workers" validate:"gte=0"`

	Seed           int64   `yaml:"seed" json:"seed"`
	OutputDir      string  `yaml:"output_dir" json:"output_dir" validate:"required"`
	AMP            bool    `yaml:"amp" json:"amp"`
	ResumeCkptPath *string `yaml:"resume_ckpt_path,omitempty" json:"resume_ckpt_path,omitempty"`
	Printable      bool    `yaml:"printable,omitempty" json:"printable,omitempty"`

	Evaluate    bool     `yaml:"evaluate" json:"evaluate"`
	TrainSplits []string `yaml:"train_splits" json:"train_splits" validate:"dive,required"`
	ValidSplits []string `yaml:"valid_splits,omitempty" json:"valid_splits,omitempty" validate:"dive,required"`
	TestSplits  []string `yaml:"test_splits,omitempty" json:"test_splits,omitempty" validate:"dive,required"`

	// Distributed
	Device             string `yaml:"device" json:"device" validate:"oneof=cuda cpu"`
	WorldSize          int    `yaml:"world_size" json:"world_size" validate:"gt=0"`
	DistURL            string `yaml:"dist_url" json:"dist_url"`
	Distributed        bool   `yaml:"distributed" json:"distributed"`
	UseDistEvalSampler bool   `yaml:"use_dist_eval_sampler,omitempty" json:"use_dist_eval_sampler,omitempty"`
}

const defaultLRDecayRate = 0.9

// GradAccumulation returns accum_grad_iters, defaulting to 1 when unset.
func (r RunSpec) GradAccumulation() int {
	if r.AccumGradIters == nil {
		return 1
	}
	return *r.AccumGradIters
}

// DecayRate returns lr_decay_rate, defaulting to 0.9 when unset.
func (r RunSpec) DecayRate() float64 {
	if r.LRDecayRate == nil {
		return defaultLRDecayRate
	}
	return *r.LRDecayRate
}

// ResumePath returns resume_ckpt_path, or "" for a fresh run.
func (r RunSpec) ResumePath() string {
	if r.ResumeCkptPath == nil {
		return ""
	}
	return *r.ResumeCkptPath
}

// IterationBased reports whether the run counts fixed iterations
// (max_iters) rather than epochs.
func (r RunSpec) IterationBased() bool {
	return r.MaxIters != nil
}

// Source returns the path the config was loaded from.
func (c *Config) Source() string { return c.source }

// BaseDir returns the directory relative paths were resolved against.
func (c *Config) BaseDir() string { return c.baseDir }

// DatasetNames returns dataset names in sorted order.
func (c *Config) DatasetNames() []string {
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy that shares no mutable state with c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Model.Stage = clonePtr(c.Model.Stage)
	out.Model.FreezeProteinEncoder = clonePtr(c.Model.FreezeProteinEncoder)
	out.Model.FreezeLP = clonePtr(c.Model.FreezeLP)
	out.Model.FreezeLlama = clonePtr(c.Model.FreezeLlama)
	out.Model.FreezeStrEncoder = clonePtr(c.Model.FreezeStrEncoder)
	if c.Model.Lora != nil {
		l := *c.Model.Lora
		l.TargetModules = slices.Clone(c.Model.Lora.TargetModules)
		l.Dropout = clonePtr(c.Model.Lora.Dropout)
		out.Model.Lora = &l
	}
	if c.Datasets != nil {
		out.Datasets = make(map[string]DatasetSpec, len(c.Datasets))
		for name, ds := range c.Datasets {
			ds.BuildInfo = maps.Clone(ds.BuildInfo)
			out.Datasets[name] = ds
		}
	}
	out.Run.LRDecayRate = clonePtr(c.Run.LRDecayRate)
	out.Run.AccumGradIters = clonePtr(c.Run.AccumGradIters)
	out.Run.ItersPerEpoch = clonePtr(c.Run.ItersPerEpoch)
	out.Run.MaxIters = clonePtr(c.Run.MaxIters)
	out.Run.ItersPerInnerEpoch = clonePtr(c.Run.ItersPerInnerEpoch)
	out.Run.ResumeCkptPath = clonePtr(c.Run.ResumeCkptPath)
	out.Run.TrainSplits = slices.Clone(c.Run.TrainSplits)
	out.Run.ValidSplits = slices.Clone(c.Run.ValidSplits)
	out.Run.TestSplits = slices.Clone(c.Run.TestSplits)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. It is handy when building configs in code.
func Ptr[T any](v T) *T { return &v }
