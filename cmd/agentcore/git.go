package main

import (
	"os"
	"path/filepath"
)

// isGitRepo reports whether dir or one of its ancestors is a git
// repository, backing --skip-git-repo-check (spec §6).
func isGitRepo(dir string) bool {
	if dir == "" {
		return false
	}

	current, err := filepath.Abs(dir)
	if err != nil {
		return false
	}

	for {
		info, err := os.Stat(filepath.Join(current, ".git"))
		if err == nil && info.IsDir() {
			return true
		}

		parent := filepath.Dir(current)
		if parent == current {
			return false
		}
		current = parent
	}
}
