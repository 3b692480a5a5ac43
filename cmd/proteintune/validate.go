package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/proteintune/internal/config"
	"github.com/samcharles93/proteintune/internal/logger"
)

func validateCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a run document against the training contract",
		ArgsUsage: "[config.yaml]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, path, cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				fes := config.Violations(err)
				if len(fes) == 0 {
					return err
				}
				_, _ = fmt.Fprintf(stderr(cmd), "%s is invalid:\n", path)
				printViolations(stderr(cmd), fes)
				return cli.Exit(fmt.Sprintf("error: %d violation(s)", len(fes)), exitInvalid)
			}
			stage, _ := config.ValidateStageConsistency(cfg)
			logger.FromContext(ctx).Debug("validated", "path", path, "stage", stage.String())
			_, err = fmt.Fprintf(stdout(cmd), "%s: ok (%s, effective batch size %d)\n",
				path, stage, config.EffectiveBatchSize(cfg.Run))
			return err
		},
	}
}
