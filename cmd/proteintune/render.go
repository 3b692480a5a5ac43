package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/proteintune/internal/config"
)

func renderCmd() *cli.Command {
	var format string

	return &cli.Command{
		Name:      "render",
		Usage:     "Print the validated document in canonical form",
		ArgsUsage: "[config.yaml]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "output format (yaml, json)",
				Value:       "yaml",
				Destination: &format,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, _, cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "yaml", "yml":
				data, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = stdout(cmd).Write(data)
				return err
			case "json":
				doc, err := config.Document(cfg)
				if err != nil {
					return err
				}
				return writeJSON(stdout(cmd), doc)
			default:
				return cli.Exit(fmt.Sprintf("error: unknown format %q (want yaml or json)", format), exitFailure)
			}
		},
	}
}
