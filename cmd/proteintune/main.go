package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "proteintune",
		Usage:  "Validate and inspect ProteinChat fine-tuning configurations",
		Flags:  append(configFlags(), loggingFlags()...),
		Before: setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			validateCmd(),
			inspectCmd(),
			renderCmd(),
			planCmd(),
			scheduleCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}
