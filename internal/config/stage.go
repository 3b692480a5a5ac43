package config

import "strconv"

// Stage is one of the two mutually exclusive fine-tuning phases.
type Stage int

const (
	StageUnknown Stage = 0
	// StageOne trains the protein encoder and projection with the LLM frozen.
	StageOne Stage = 1
	// StageTwo trains the LLM with the encoder and projection frozen.
	StageTwo Stage = 2
)

func (s Stage) String() string {
	switch s {
	case StageOne:
		return "stage1"
	case StageTwo:
		return "stage2"
	default:
		return "stage(" + strconv.Itoa(int(s)) + ")"
	}
}

// FreezeFlags is the resolved gradient gating for each trainable submodule.
type FreezeFlags struct {
	ProteinEncoder bool `json:"freeze_protein_encoder"`
	LP             bool `json:"freeze_lp"`
	Llama          bool `json:"freeze_llama"`
}

// Flags returns the freeze flags a stage implies.
func (s Stage) Flags() (FreezeFlags, bool) {
	switch s {
	case StageOne:
		return FreezeFlags{ProteinEncoder: false, LP: false, Llama: true}, true
	case StageTwo:
		return FreezeFlags{ProteinEncoder: true, LP: true, Llama: false}, true
	default:
		return FreezeFlags{}, false
	}
}

// StageOf classifies a flag combination. Everything frozen, everything
// trainable, or an encoder/projection split all return StageUnknown.
func StageOf(f FreezeFlags) Stage {
	switch {
	case !f.ProteinEncoder && !f.LP && f.Llama:
		return StageOne
	case f.ProteinEncoder && f.LP && !f.Llama:
		return StageTwo
	default:
		return StageUnknown
	}
}

// FreezeFlags resolves the effective flags for the model. Flags absent from
// the document are taken from the declared stage. The second result is false
// when a flag is neither set nor implied.
func (m ModelSpec) FreezeFlags() (FreezeFlags, bool) {
	var implied FreezeFlags
	haveStage := false
	if m.Stage != nil {
		implied, haveStage = m.Stage.Flags()
	}
	pick := func(explicit *bool, fromStage bool) (bool, bool) {
		if explicit != nil {
			return *explicit, true
		}
		return fromStage, haveStage
	}
	var f FreezeFlags
	var ok1, ok2, ok3 bool
	f.ProteinEncoder, ok1 = pick(m.FreezeProteinEncoder, implied.ProteinEncoder)
	f.LP, ok2 = pick(m.FreezeLP, implied.LP)
	f.Llama, ok3 = pick(m.FreezeLlama, implied.Llama)
	return f, ok1 && ok2 && ok3
}

// StrEncoderFrozen reports whether the structure encoder is frozen.
// It trains unless explicitly frozen.
func (m ModelSpec) StrEncoderFrozen() bool {
	return m.FreezeStrEncoder != nil && *m.FreezeStrEncoder
}

// ValidateStageConsistency checks that the freeze flags describe a known
// stage and, when model.stage is declared, that they agree with it.
func ValidateStageConsistency(cfg *Config) (Stage, error) {
	if cfg == nil {
		return StageUnknown, stageErr("no configuration")
	}
	m := cfg.Model
	flags, complete := m.FreezeFlags()
	if !complete {
		return StageUnknown, stageErr("freeze flags are incomplete and no stage is declared")
	}
	got := StageOf(flags)
	if m.Stage != nil {
		if _, known := m.Stage.Flags(); !known {
			return StageUnknown, stageErr("unknown stage %d", int(*m.Stage))
		}
		if got != *m.Stage {
			return StageUnknown, stageErr(
				"declared %s but freeze flags (protein_encoder=%t lp=%t llama=%t) do not match it",
				*m.Stage, flags.ProteinEncoder, flags.LP, flags.Llama)
		}
	}
	if got == StageUnknown {
		return StageUnknown, stageErr(
			"freeze flags (protein_encoder=%t lp=%t llama=%t) match neither stage1 nor stage2",
			flags.ProteinEncoder, flags.LP, flags.Llama)
	}
	return got, nil
}
