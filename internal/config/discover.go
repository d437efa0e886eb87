package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// DiscoverBinary resolves the first usable path from an ordered list of
// hints. A hint that looks like a bare command
// name is resolved with exec.LookPath against $PATH; a hint that is itself
// an absolute or relative path is checked directly with os.Stat.
func DiscoverBinary(hints []string) (string, error) {
	for _, hint := range hints {
		if hint == "" {
			continue
		}
		if filepath.IsAbs(hint) {
			if info, err := os.Stat(hint); err == nil && !info.IsDir() {
				return hint, nil
			}
			continue
		}
		if resolved, err := exec.LookPath(hint); err == nil {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("discover binary: %w (checked %d candidates)", errNotFound, len(hints))
}

var errNotFound = errors.New("no candidate path exists")
