// Package logging appends timestamped lines to .overseer/logs/overseer.log
// so verdicts, breaker trips and stuck checks can be audited after the fact.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Logger is an append-only file logger. A nil *Logger is safe to use and
// discards everything, so components can treat it as optional.
type Logger struct {
	file *os.File
}

// New creates (or reuses) the log file under dir.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(dir, "overseer.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f}, nil
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	timestamp := time.Now().Format(time.RFC3339)
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
}

// Warnf writes a line with a WARN prefix. Used for judge failures that
// were recovered by a deterministic fallback.
func (l *Logger) Warnf(format string, args ...any) {
	l.Printf("WARN "+format, args...)
}
