package config

// EffectiveBatchSize is the number of samples contributing to one optimizer
// step across all processes. Learning-rate scaling is keyed on it.
func EffectiveBatchSize(r RunSpec) int {
	world := r.WorldSize
	if world < 1 {
		world = 1
	}
	return r.BatchSizeTrain * r.GradAccumulation() * world
}

// StepsPerEpoch returns the optimizer steps in one epoch, or 0 when the
// document leaves it to the dataset length.
func StepsPerEpoch(r RunSpec) int {
	switch {
	case r.ItersPerInnerEpoch != nil:
		return *r.ItersPerInnerEpoch
	case r.ItersPerEpoch != nil:
		return *r.ItersPerEpoch
	default:
		return 0
	}
}

// TotalSteps returns the planned optimizer steps for the run. max_iters wins
// when present; otherwise max_epoch * iters_per_epoch. Zero means unknown.
func TotalSteps(r RunSpec) int {
	if r.MaxIters != nil {
		return *r.MaxIters
	}
	if r.ItersPerEpoch != nil {
		return r.MaxEpoch * *r.ItersPerEpoch
	}
	return 0
}
