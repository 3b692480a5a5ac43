//go:build !unix

package config

import (
	"fmt"
	"os"
)

func writable(dir string) error {
	f, err := os.CreateTemp(dir, ".proteintune-probe-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
