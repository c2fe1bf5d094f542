package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultClientRoot returns "$HOME/tftp", creating it if missing, for
// cmd/tftp's default local download/upload directory.
func DefaultClientRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: user home dir: %w", err)
	}

	root := filepath.Join(home, "tftp")

	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("config: stat %s: %w", root, err)
		}

		if err := os.Mkdir(root, 0o750); err != nil {
			return "", fmt.Errorf("config: create %s: %w", root, err)
		}
	}

	return root, nil
}
