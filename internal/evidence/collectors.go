package evidence

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"syscall"
)

// tailLines bounds how much of the log the gatherer carries around.
const tailLines = 50

// ProcInspector checks process liveness via signal 0.
type ProcInspector struct{}

// Alive reports whether the pid refers to a live process. EPERM means
// the process exists but belongs to another user, which still counts.
func (ProcInspector) Alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if err == syscall.EPERM {
		return true, nil
	}
	return false, nil
}

var (
	exitCodeRe = regexp.MustCompile(`(?i)exit(?:ed with)?(?: code)?[:\s]+(-?\d+)`)
	prURLRe    = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+/pull/(\d+)`)
	prShortRe  = regexp.MustCompile(`(?i)\bPR\s*#(\d+)`)
)

// FileLogReader extracts the log signal from a worker log file on disk.
type FileLogReader struct{}

// Scan reads the log and derives its signal: latest completion marker,
// last reported exit code, any pull-request reference, and the bounded
// tail. A missing file is an error so the gatherer can distinguish
// "dispatch never produced a log" from "log exists but is empty".
func (FileLogReader) Scan(path string) (*LogSignal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read worker log: %w", err)
	}

	content := string(data)
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		lines = nil
	}

	sig := &LogSignal{HasOutput: len(lines) > 0}
	if n := len(lines); n > tailLines {
		sig.Tail = lines[n-tailLines:]
	} else {
		sig.Tail = lines
	}

	// Latest marker wins: scan from the end.
	for i := len(lines) - 1; i >= 0 && sig.Marker == MarkerNone; i-- {
		sig.Marker = matchMarker(lines[i])
	}

	for i := len(lines) - 1; i >= 0 && sig.ExitCode == nil; i-- {
		if m := exitCodeRe.FindStringSubmatch(lines[i]); m != nil {
			if code, err := strconv.Atoi(m[1]); err == nil {
				sig.ExitCode = &code
			}
		}
	}

	// Most recent PR mention wins.
	for i := len(lines) - 1; i >= 0 && sig.PRRef == ""; i-- {
		if m := prURLRe.FindStringSubmatch(lines[i]); m != nil {
			sig.PRRef = m[1]
		} else if m := prShortRe.FindStringSubmatch(lines[i]); m != nil {
			sig.PRRef = m[1]
		}
	}

	return sig, nil
}

// matchMarker checks a line against the completion-marker vocabulary.
// Longer markers are tried first so "verification not started" never
// matches as a prefix of something shorter.
func matchMarker(line string) Marker {
	lower := strings.ToLower(line)
	for _, m := range []Marker{
		MarkerVerificationNotStarted,
		MarkerVerificationIncomplete,
		MarkerVerificationComplete,
		MarkerLoopComplete,
	} {
		if strings.Contains(lower, string(m)) {
			return m
		}
	}
	return MarkerNone
}

// TailReader exposes just the bounded log tail, for callers that want
// recent output without the rest of the signal.
type TailReader struct {
	Reader FileLogReader
}

// Tail returns the most recent lines of the log, or nil when the log is
// unreadable.
func (t TailReader) Tail(path string) []string {
	sig, err := t.Reader.Scan(path)
	if err != nil {
		return nil
	}
	return sig.Tail
}

// MarkdownChecklist reads a line-oriented task-list file with entries
// like "- [x] 12.3 implement the parser".
type MarkdownChecklist struct {
	Path string
}

var checklistRe = regexp.MustCompile(`^\s*[-*]\s*\[([ xX])\]\s*(\S+)`)

// State reports whether the task's checklist entry is done, open, or
// absent from the file.
func (c MarkdownChecklist) State(taskID string) (ChecklistState, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return ChecklistUnknown, fmt.Errorf("read checklist: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		m := checklistRe.FindStringSubmatch(line)
		if m == nil || m[2] != taskID {
			continue
		}
		if m[1] == " " {
			return ChecklistOpen, nil
		}
		return ChecklistDone, nil
	}
	return ChecklistAbsent, nil
}
