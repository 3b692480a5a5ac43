package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/proteintune/internal/logger"
	"github.com/samcharles93/proteintune/internal/plan"
)

var runID string

// planOptions mirrors the CLI flags into plan.Build options.
func planOptions() []plan.Option {
	var opts []plan.Option
	if runID != "" {
		opts = append(opts, plan.WithRunID(runID))
	}
	if skipPathChecks {
		opts = append(opts, plan.WithoutCheckpointStat())
	}
	return opts
}

func planCmd() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Print the launch plan an orchestrator should follow",
		ArgsUsage: "[config.yaml]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "run-id",
				Usage:       "run identifier (default: generated)",
				Destination: &runID,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, _, cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}
			p, err := plan.Build(cfg, planOptions()...)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)
			for _, w := range p.Warnings {
				log.Warn(w, "run_id", p.RunID)
			}
			return writeJSON(stdout(cmd), p)
		},
	}
}
