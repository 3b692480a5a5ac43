// Package plan derives what a training orchestrator should do from a loaded
// configuration: which submodules train, which adapter wraps the language
// model, which checkpoints load in what order, and how steps are counted.
package plan

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/samcharles93/proteintune/internal/config"
	"github.com/samcharles93/proteintune/internal/schedule"
)

// Submodule names as they appear in the ProteinChat model graph.
const (
	ModuleProteinEncoder = "protein_encoder"
	ModuleStrEncoder     = "str_encoder"
	ModuleProjection     = "glm_llama_proj"
	ModuleStrProjection  = "str_llama_proj"
	ModuleLlama          = "llama_model"
)

type Module struct {
	Name      string `json:"name"`
	Trainable bool   `json:"trainable"`
}

type Plan struct {
	RunID  string       `json:"run_id"`
	RunDir string       `json:"run_dir"`
	Stage  config.Stage `json:"stage"`

	Modules []Module `json:"modules"`
	// Adapter is set when the language model trains; its base weights stay
	// frozen and only the LoRA parameters update.
	Adapter *config.LoraSpec `json:"adapter,omitempty"`
	// AlphaFold configures structure prediction for the structure encoder.
	AlphaFold config.AlphaFoldSettings `json:"alphafold"`

	// Checkpoints load in order before training. Resume is applied last,
	// after the model and optimizer are built.
	Checkpoints []config.CheckpointRef `json:"checkpoints"`
	Resume      *config.CheckpointRef  `json:"resume,omitempty"`

	Schedule           string `json:"schedule"`
	EffectiveBatchSize int    `json:"effective_batch_size"`
	StepsPerEpoch      int    `json:"steps_per_epoch"`
	TotalSteps         int    `json:"total_steps"`
	IterationBased     bool   `json:"iteration_based"`

	Warnings []string `json:"warnings,omitempty"`
}

type buildOptions struct {
	runID     string
	skipStats bool
}

type Option func(*buildOptions)

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *buildOptions) { o.runID = id }
}

// WithoutCheckpointStat lists checkpoints by path without touching the
// filesystem. Useful with configs parsed under config.WithoutPathChecks.
func WithoutCheckpointStat() Option {
	return func(o *buildOptions) { o.skipStats = true }
}

// Build derives the launch plan for cfg.
func Build(cfg *config.Config, opts ...Option) (*Plan, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	stage, err := config.ValidateStageConsistency(cfg)
	if err != nil {
		return nil, err
	}
	flags, _ := cfg.Model.FreezeFlags()

	if o.runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		o.runID = id.String()
	}

	sched, err := schedule.New(cfg.Run)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		RunID:  o.runID,
		RunDir: filepath.Join(cfg.Resolve(cfg.Run.OutputDir), o.runID),
		Stage:  stage,
		Modules: []Module{
			{Name: ModuleProteinEncoder, Trainable: !flags.ProteinEncoder},
			{Name: ModuleStrEncoder, Trainable: !cfg.Model.StrEncoderFrozen()},
			{Name: ModuleProjection, Trainable: !flags.LP},
			// The structure projection has no freeze switch.
			{Name: ModuleStrProjection, Trainable: true},
			{Name: ModuleLlama, Trainable: !flags.Llama},
		},
		AlphaFold:          cfg.Model.AlphaFold(),
		Schedule:           sched.Name(),
		EffectiveBatchSize: config.EffectiveBatchSize(cfg.Run),
		StepsPerEpoch:      config.StepsPerEpoch(cfg.Run),
		TotalSteps:         config.TotalSteps(cfg.Run),
		IterationBased:     cfg.Run.IterationBased(),
	}
	if !flags.Llama {
		a := adapter(cfg.Model.Lora)
		p.Adapter = &a
	}

	if err := p.addCheckpoints(cfg, o.skipStats); err != nil {
		return nil, err
	}
	p.Warnings = warnings(cfg, stage)
	return p, nil
}

func (p *Plan) addCheckpoints(cfg *config.Config, skipStats bool) error {
	refs := []struct{ field, path string }{
		{"model.stage1_ckpt", cfg.Model.Stage1Ckpt},
		{"model.peft_ckpt", cfg.Model.PeftCkpt},
	}
	var errs []error
	for _, r := range refs {
		if r.path == "" {
			continue
		}
		if skipStats {
			p.Checkpoints = append(p.Checkpoints, config.CheckpointRef{Field: r.field, Path: cfg.Resolve(r.path)})
			continue
		}
		ref, err := config.ResolveCheckpoint(cfg, r.field, r.path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Checkpoints = append(p.Checkpoints, *ref)
	}

	if skipStats {
		if rp := cfg.Run.ResumePath(); rp != "" {
			p.Resume = &config.CheckpointRef{Field: "run.resume_ckpt_path", Path: cfg.Resolve(rp)}
		}
	} else {
		resume, err := config.ResolveResume(cfg)
		if err != nil {
			errs = append(errs, err)
		}
		p.Resume = resume
	}
	return errors.Join(errs...)
}

// adapter fills unset LoRA fields from the defaults.
func adapter(spec *config.LoraSpec) config.LoraSpec {
	out := config.DefaultLora()
	if spec == nil {
		return out
	}
	if spec.R > 0 {
		out.R = spec.R
	}
	if spec.Alpha > 0 {
		out.Alpha = spec.Alpha
	}
	if spec.Dropout != nil {
		out.Dropout = config.Ptr(*spec.Dropout)
	}
	if len(spec.TargetModules) > 0 {
		out.TargetModules = append([]string(nil), spec.TargetModules...)
	}
	if spec.Bias != "" {
		out.Bias = spec.Bias
	}
	return out
}

func warnings(cfg *config.Config, stage config.Stage) []string {
	var out []string
	m := cfg.Model
	switch stage {
	case config.StageTwo:
		if m.Stage1Ckpt == "" {
			out = append(out, "stage2 without stage1_ckpt: encoder and projection keep their initial weights")
		}
	case config.StageOne:
		if m.PeftCkpt != "" {
			out = append(out, "peft_ckpt is set but the LLM is frozen in stage1; adapter weights will not match")
		}
		if m.Lora != nil {
			out = append(out, "lora settings are ignored while the LLM is frozen")
		}
	}
	if m.Device8Bit != 0 && !m.LowResource {
		out = append(out, "device_8bit only applies with low_resource: true")
	}
	if cfg.Run.ResumePath() != "" && (m.Stage1Ckpt != "" || m.PeftCkpt != "") {
		out = append(out, "resume_ckpt_path overrides weights loaded from stage1_ckpt/peft_ckpt")
	}
	return out
}

// Trainable returns the names of the submodules that receive gradients.
func (p *Plan) Trainable() []string {
	var out []string
	for _, m := range p.Modules {
		if m.Trainable {
			out = append(out, m.Name)
		}
	}
	return out
}
