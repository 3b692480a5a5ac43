package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var errNoConfig = errors.New("no config given")

// resolveConfigPath picks the run document from --config or the first
// positional argument. Giving both is only allowed when they agree.
func resolveConfigPath(flag, arg string) (string, error) {
	flag = strings.TrimSpace(flag)
	arg = strings.TrimSpace(arg)
	switch {
	case flag == "" && arg == "":
		return "", fmt.Errorf("%w: pass a path, set --config, or set %s", errNoConfig, envConfig)
	case flag == "":
		return filepath.Clean(arg), nil
	case arg == "":
		return filepath.Clean(flag), nil
	}
	if filepath.Clean(flag) != filepath.Clean(arg) {
		return "", fmt.Errorf("conflicting config paths: --config %q and argument %q", flag, arg)
	}
	return filepath.Clean(flag), nil
}

// resolveBaseDir anchors relative paths. An explicit directory wins; the
// empty string defers to the working directory.
func resolveBaseDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve base dir %q: %w", dir, err)
	}
	return abs, nil
}
