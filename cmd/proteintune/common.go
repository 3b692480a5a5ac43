package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/proteintune/internal/config"
	"github.com/samcharles93/proteintune/internal/logger"
)

const (
	exitFailure = 1
	// exitInvalid reports a document that violates the training contract.
	exitInvalid = 2
)

// levelExplicit records whether the user chose a log level, so the
// document's printable switch does not override it.
var levelExplicit bool

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	levelExplicit = debug || cmd.IsSet("log-level")
	level := logLevel
	if debug {
		level = "debug"
	}
	w := stderr(cmd)
	log, err := logger.Setup(w, resolveFormat(logFormat, w), level)
	if err != nil {
		return ctx, cli.Exit("error: "+err.Error(), exitFailure)
	}
	return logger.WithContext(ctx, log), nil
}

// resolveFormat drops colour when pretty output is not going to a terminal.
func resolveFormat(format string, w io.Writer) string {
	if !strings.EqualFold(strings.TrimSpace(format), "pretty") {
		return format
	}
	f, ok := w.(*os.File)
	if !ok {
		return "text"
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return "text"
	}
	return format
}

// loadConfig loads the run document named by the flags and arguments. When
// the document asks for printable output and no level was chosen, the
// returned context carries a debug logger.
func loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, string, *config.Config, error) {
	path, err := resolveConfigPath(configPath, cmd.Args().First())
	if err != nil {
		return ctx, "", nil, err
	}
	opts, err := loadOptions(ctx)
	if err != nil {
		return ctx, path, nil, err
	}
	cfg, err := config.Load(path, opts...)
	if err != nil {
		return ctx, path, nil, err
	}
	if cfg.Run.Printable && !levelExplicit {
		w := stderr(cmd)
		log, err := logger.Setup(w, resolveFormat(logFormat, w), "debug")
		if err == nil {
			ctx = logger.WithContext(ctx, log)
		}
	}
	return ctx, path, cfg, nil
}

func loadOptions(ctx context.Context) ([]config.Option, error) {
	dir, err := resolveBaseDir(baseDir)
	if err != nil {
		return nil, err
	}
	opts := []config.Option{config.WithLogger(logger.FromContext(ctx))}
	if dir != "" {
		opts = append(opts, config.WithBaseDir(dir))
	}
	if skipPathChecks {
		opts = append(opts, config.WithoutPathChecks())
	}
	return opts, nil
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func printViolations(w io.Writer, fes []*config.FieldError) {
	for _, fe := range fes {
		msg := fe.Msg
		if fe.Err != nil {
			msg += ": " + fe.Err.Error()
		}
		field := fe.Field
		if field == "" {
			field = "(document)"
		}
		_, _ = fmt.Fprintf(w, "  %-22s %-32s %s\n", fe.Code(), field, msg)
	}
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if len(config.Violations(err)) > 0 {
		return exitInvalid
	}
	return exitFailure
}
