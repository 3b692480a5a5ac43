// Package schedule computes the learning rate an orchestrator applies at a
// given (epoch, step) for each run.lr_sched option.
package schedule

import (
	"fmt"
	"math"

	"github.com/samcharles93/proteintune/internal/config"
)

const (
	LinearWarmupCosine = "linear_warmup_cosine_lr"
	LinearWarmupStep   = "linear_warmup_step_lr"
	Constant           = "constant_lr"
)

// Schedule maps a position in training to a learning rate.
type Schedule interface {
	Name() string
	// LR returns the rate for step (0-based, within the epoch) of epoch
	// (0-based).
	LR(epoch, step int) float64
}

type params struct {
	initLR, minLR, warmupLR float64
	warmupSteps             int
	maxEpoch                int
}

// warmup ramps linearly from warmupLR to initLR over warmupSteps.
func (p params) warmup(step int) float64 {
	span := max(p.warmupSteps, 1)
	lr := p.warmupLR + (p.initLR-p.warmupLR)*float64(step)/float64(span)
	return math.Min(p.initLR, lr)
}

type cosine struct{ params }

func (cosine) Name() string { return LinearWarmupCosine }

func (c cosine) LR(epoch, step int) float64 {
	if epoch == 0 && step < c.warmupSteps {
		return c.warmup(step)
	}
	progress := float64(epoch) / float64(c.maxEpoch)
	return (c.initLR-c.minLR)*0.5*(1+math.Cos(math.Pi*progress)) + c.minLR
}

type stepDecay struct {
	params
	decay float64
}

func (stepDecay) Name() string { return LinearWarmupStep }

// LR warms up across all of epoch 0 and decays geometrically afterwards.
func (s stepDecay) LR(epoch, step int) float64 {
	if epoch == 0 {
		return s.warmup(step)
	}
	return math.Max(s.minLR, s.initLR*math.Pow(s.decay, float64(epoch)))
}

type constant struct{ params }

func (constant) Name() string { return Constant }

func (c constant) LR(epoch, step int) float64 {
	if epoch == 0 && step < c.warmupSteps {
		return c.warmup(step)
	}
	return c.initLR
}

// New builds the schedule selected by run.lr_sched.
func New(run config.RunSpec) (Schedule, error) {
	p := params{
		initLR:      run.InitLR,
		minLR:       run.MinLR,
		warmupLR:    run.WarmupLR,
		warmupSteps: run.WarmupSteps,
		maxEpoch:    max(run.MaxEpoch, 1),
	}
	switch run.LRSched {
	case LinearWarmupCosine:
		return cosine{p}, nil
	case LinearWarmupStep:
		return stepDecay{params: p, decay: run.DecayRate()}, nil
	case Constant:
		return constant{p}, nil
	default:
		return nil, fmt.Errorf("unknown lr_sched %q", run.LRSched)
	}
}

// Point is one sample of a schedule.
type Point struct {
	Epoch int     `json:"epoch"`
	Step  int     `json:"step"`
	LR    float64 `json:"lr"`
}

// Sample evaluates s every `every` steps across epochs of stepsPerEpoch
// steps, always including the first step of each epoch.
func Sample(s Schedule, epochs, stepsPerEpoch, every int) []Point {
	if every < 1 {
		every = 1
	}
	stepsPerEpoch = max(stepsPerEpoch, 1)
	var pts []Point
	for e := 0; e < epochs; e++ {
		for st := 0; st < stepsPerEpoch; st += every {
			pts = append(pts, Point{Epoch: e, Step: st, LR: s.LR(e, st)})
		}
	}
	return pts
}
