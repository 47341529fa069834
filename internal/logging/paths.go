package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir is where logs land when no path is configured:
// ~/.casegrounds/logs, or under the temp directory when there is no home.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".casegrounds", "logs")
	}
	return filepath.Join(home, ".casegrounds", "logs")
}

// DefaultLogPath returns the default server log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
