package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/proteintune/internal/config"
	"github.com/samcharles93/proteintune/internal/schedule"
)

func scheduleCmd() *cli.Command {
	var (
		every  int64
		epochs int64
	)

	return &cli.Command{
		Name:      "schedule",
		Usage:     "Sample the learning-rate schedule the document selects",
		ArgsUsage: "[config.yaml]",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "every",
				Usage:       "sample every N steps (default: ten samples per epoch)",
				Destination: &every,
			},
			&cli.Int64Flag{
				Name:        "epochs",
				Usage:       "number of epochs to sample (default: max_epoch)",
				Destination: &epochs,
			},
			jsonFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, _, cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}
			s, err := schedule.New(cfg.Run)
			if err != nil {
				return err
			}
			steps := config.StepsPerEpoch(cfg.Run)
			if steps <= 0 {
				return cli.Exit("error: run.iters_per_epoch or run.iters_per_inner_epoch is needed to sample the schedule", exitFailure)
			}
			n := int(epochs)
			if n <= 0 {
				n = cfg.Run.MaxEpoch
			}
			stride := int(every)
			if stride <= 0 {
				stride = max(steps/10, 1)
			}
			pts := schedule.Sample(s, n, steps, stride)
			if jsonOutput {
				return writeJSON(stdout(cmd), map[string]any{
					"schedule": s.Name(),
					"points":   pts,
				})
			}
			return printSchedule(stdout(cmd), s.Name(), pts)
		},
	}
}

func printSchedule(w io.Writer, name string, pts []schedule.Point) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)
	fmt.Fprintf(&b, "%6s %8s %12s\n", "epoch", "step", "lr")
	for _, p := range pts {
		fmt.Fprintf(&b, "%6d %8d %12.4e\n", p.Epoch, p.Step, p.LR)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
