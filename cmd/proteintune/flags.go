package main

import "github.com/urfave/cli/v3"

const (
	envConfig  = "PROTEINTUNE_CONFIG"
	envBaseDir = "PROTEINTUNE_BASE_DIR"
)

var (
	configPath     string
	baseDir        string
	skipPathChecks bool
	logLevel       string
	logFormat      string
	debug          bool
	jsonOutput     bool
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to the run document (or pass it as the first argument)",
			Sources:     cli.EnvVars(envConfig),
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "base-dir",
			Usage:       "directory relative paths in the document resolve against (default: working directory)",
			Sources:     cli.EnvVars(envBaseDir),
			Destination: &baseDir,
		},
		&cli.BoolFlag{
			Name:        "skip-path-checks",
			Usage:       "do not check that referenced paths exist",
			Destination: &skipPathChecks,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "print JSON instead of text",
		Destination: &jsonOutput,
	}
}
