package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/proteintune/internal/config"
	"github.com/samcharles93/proteintune/internal/plan"
)

type summary struct {
	Source             string                `json:"source"`
	Stage              string                `json:"stage"`
	DeclaredStage      bool                  `json:"declared_stage"`
	Flags              config.FreezeFlags    `json:"flags"`
	Trainable          []string              `json:"trainable"`
	Datasets           map[string][]string   `json:"datasets"`
	Schedule           string                `json:"schedule"`
	EffectiveBatchSize int                   `json:"effective_batch_size"`
	StepsPerEpoch      int                   `json:"steps_per_epoch"`
	TotalSteps         int                   `json:"total_steps"`
	IterationBased     bool                  `json:"iteration_based"`
	Resume             *config.CheckpointRef `json:"resume,omitempty"`
	Warnings           []string              `json:"warnings,omitempty"`
}

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarize the stage, trainable modules, and step accounting of a run document",
		ArgsUsage: "[config.yaml]",
		Flags:     []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, _, cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}
			s, err := summarize(cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(stdout(cmd), s)
			}
			return printSummary(stdout(cmd), s)
		},
	}
}

func summarize(cfg *config.Config) (*summary, error) {
	p, err := plan.Build(cfg, planOptions()...)
	if err != nil {
		return nil, err
	}
	flags, _ := cfg.Model.FreezeFlags()
	s := &summary{
		Source:             cfg.Source(),
		Stage:              p.Stage.String(),
		DeclaredStage:      cfg.Model.Stage != nil,
		Flags:              flags,
		Trainable:          p.Trainable(),
		Datasets:           make(map[string][]string, len(cfg.Datasets)),
		Schedule:           p.Schedule,
		EffectiveBatchSize: p.EffectiveBatchSize,
		StepsPerEpoch:      p.StepsPerEpoch,
		TotalSteps:         p.TotalSteps,
		IterationBased:     p.IterationBased,
		Resume:             p.Resume,
		Warnings:           p.Warnings,
	}
	for name, ds := range cfg.Datasets {
		s.Datasets[name] = ds.Splits()
	}
	return s, nil
}

func printSummary(w io.Writer, s *summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "source:          %s\n", s.Source)
	stage := s.Stage
	if s.DeclaredStage {
		stage += " (declared)"
	}
	fmt.Fprintf(&b, "stage:           %s\n", stage)
	fmt.Fprintf(&b, "trainable:       %s\n", strings.Join(s.Trainable, ", "))
	fmt.Fprintf(&b, "schedule:        %s\n", s.Schedule)
	fmt.Fprintf(&b, "effective batch: %d\n", s.EffectiveBatchSize)
	if s.IterationBased {
		fmt.Fprintf(&b, "steps:           %d total, %d per inner epoch\n", s.TotalSteps, s.StepsPerEpoch)
	} else {
		fmt.Fprintf(&b, "steps:           %d total, %d per epoch\n", s.TotalSteps, s.StepsPerEpoch)
	}
	for _, name := range slices.Sorted(maps.Keys(s.Datasets)) {
		fmt.Fprintf(&b, "dataset:         %s [%s]\n", name, strings.Join(s.Datasets[name], ", "))
	}
	if s.Resume != nil {
		fmt.Fprintf(&b, "resume:          %s\n", s.Resume.Path)
	}
	for _, warn := range s.Warnings {
		fmt.Fprintf(&b, "warning:         %s\n", warn)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
