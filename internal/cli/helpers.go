package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/okral/overseer/internal/config"
	"github.com/okral/overseer/internal/logging"
	"github.com/okral/overseer/internal/store"
)

const overseerDirName = ".overseer"

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

// overseerPath returns the path to a file inside .overseer/.
func overseerPath(parts ...string) string {
	elems := append([]string{overseerDirName}, parts...)
	return filepath.Join(elems...)
}

// mustStore opens the store, returning an error if overseer is not
// initialized.
func mustStore() (*store.Store, error) {
	dbPath := overseerPath("overseer.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("overseer not initialized. Run: overseer init")
	}
	return store.New(dbPath)
}

// mustConfig loads the project config.
func mustConfig() (*config.Config, error) {
	path := overseerPath("config.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("overseer not initialized. Run: overseer init")
	}
	return config.Load(path)
}

// openLogger opens the audit log; a nil logger is returned on failure so
// callers can proceed without logging.
func openLogger() *logging.Logger {
	l, err := logging.New(overseerPath("logs"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return nil
	}
	return l
}

// statusColor picks the display color for a lifecycle state.
func statusColor(s store.TaskStatus) string {
	switch s {
	case store.StatusQueued, store.StatusRetrying:
		return colorYellow
	case store.StatusDispatched, store.StatusRunning, store.StatusEvaluating:
		return colorBlue
	case store.StatusComplete, store.StatusPRReview, store.StatusReviewTriage, store.StatusMerging, store.StatusVerified:
		return colorCyan
	case store.StatusDeployed:
		return colorGreen
	case store.StatusFailed, store.StatusCancelled, store.StatusBlocked:
		return colorRed
	default:
		return colorReset
	}
}
