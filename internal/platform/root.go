package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrRootNotFound is returned by FindRoot when no marker is found.
var ErrRootNotFound = errors.New("root not found")

// DefaultHomeDir is where notes live when no root is discovered, relative to
// the user's home directory.
const DefaultHomeDir = ".jot/notes"

// FindRoot looks upwards from startDir for a notes root. Markers are a .jot
// directory, a .git directory or a jot.json file.
func FindRoot(startDir string) (string, error) {
	return findMarked(startDir, ".jot", ".git", "jot.json")
}

// DefaultStore picks the store URI used when none is configured: the nearest
// directory holding .jot or jot.json, else ~/.jot/notes. A bare git repository
// is not enough to be adopted as a notes root.
func DefaultStore() (string, error) {
	if wd, err := os.Getwd(); err == nil {
		if root, err := findMarked(wd, ".jot", "jot.json"); err == nil {
			return root, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultHomeDir), nil
}

func findMarked(startDir string, markers ...string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		for _, m := range markers {
			if hasFile(dir, m) {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrRootNotFound
		}
		dir = parent
	}
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
