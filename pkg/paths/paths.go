// Package paths resolves the process-wide directories used outside the
// project tree: the debug log location and the first-run marker.
package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the user's config directory for agentcore.
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory. This is a best-effort fallback and
// not intended to be a security boundary.
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".agentcore-config"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".config", "agentcore"))
}

// GetDataDir returns the user's data directory for agentcore (debug logs).
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory.
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".agentcore"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".agentcore"))
}

// GetHomeDir returns the user's home directory, used as the lowest-
// precedence settings layer (spec §4.1, §6).
//
// Returns an empty string if the home directory cannot be determined.
func GetHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Clean(homeDir)
}
