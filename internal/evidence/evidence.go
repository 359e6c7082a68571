// Package evidence collects facts about one task from the worker's
// process table entry, its output log, the task-list file, and the
// hosting platform. It never judges: that is the verdict engine's job.
package evidence

import (
	"context"
	"strconv"

	"github.com/okral/overseer/internal/store"
)

// Signal is a tri-state fact. Evidence sources that fail degrade to
// Unknown instead of aborting the gather.
type Signal int

const (
	Unknown Signal = iota
	No
	Yes
)

func (s Signal) String() string {
	switch s {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// Marker is the fixed vocabulary of completion markers a worker may
// print near the end of its log.
type Marker string

const (
	MarkerNone                   Marker = ""
	MarkerLoopComplete           Marker = "loop complete"
	MarkerVerificationComplete   Marker = "verification complete"
	MarkerVerificationIncomplete Marker = "verification incomplete"
	MarkerVerificationNotStarted Marker = "verification not started"
)

// ChecklistState is the task's entry in the task-list file.
type ChecklistState string

const (
	ChecklistUnknown ChecklistState = "unknown"
	ChecklistDone    ChecklistState = "done"
	ChecklistOpen    ChecklistState = "open"
	ChecklistAbsent  ChecklistState = "absent"
)

// PRState is the hosting platform's view of a pull request.
type PRState string

const (
	PRUnknown PRState = "unknown"
	PRNone    PRState = "none"
	PROpen    PRState = "open"
	PRMerged  PRState = "merged"
	PRClosed  PRState = "closed"
)

// LogSignal is everything the log reader extracted from the worker log.
type LogSignal struct {
	Marker    Marker   // latest completion marker, or MarkerNone
	ExitCode  *int     // last reported exit code, nil if never reported
	PRRef     string   // pull request reference mentioned in the log
	Tail      []string // bounded most-recent lines
	HasOutput bool     // whether the worker produced any output at all
}

// Bundle is the structured evidence for one task. Fields whose source
// was unreachable hold their explicit unknown sentinel; a bundle is
// always usable, possibly partially.
type Bundle struct {
	TaskID       string
	ProcessAlive Signal
	Log          LogSignal
	LogFound     bool // false when the log file never existed (dispatch failed)
	Checklist    ChecklistState
	PRRef        string // resolved reference: log, then task, then branch search
	PRState      PRState
}

// ProcessInspector reports liveness of a worker by process id.
type ProcessInspector interface {
	Alive(pid int) (bool, error)
}

// LogReader extracts the log signal from a worker's log reference.
type LogReader interface {
	Scan(path string) (*LogSignal, error)
}

// ChecklistReader reports a task's entry in the task-list file.
type ChecklistReader interface {
	State(taskID string) (ChecklistState, error)
}

// PlatformClient looks up pull-request state on the hosting platform.
type PlatformClient interface {
	PullRequestState(ctx context.Context, ref string) (PRState, error)
	FindPullRequestByBranch(ctx context.Context, branch string) (ref string, state PRState, err error)
}

// Gatherer assembles evidence bundles from the four collaborators.
type Gatherer struct {
	Proc      ProcessInspector
	Logs      LogReader
	Checklist ChecklistReader
	Platform  PlatformClient
}

// Gather collects all available facts about the task. It is read-only
// and never fails outright: each unreachable source degrades its field
// to the unknown sentinel.
func (g *Gatherer) Gather(ctx context.Context, task *store.Task) *Bundle {
	b := &Bundle{
		TaskID:       task.ID,
		ProcessAlive: Unknown,
		Checklist:    ChecklistUnknown,
		PRState:      PRUnknown,
	}

	if task.PID > 0 && g.Proc != nil {
		if alive, err := g.Proc.Alive(task.PID); err == nil {
			if alive {
				b.ProcessAlive = Yes
			} else {
				b.ProcessAlive = No
			}
		}
	} else if task.PID == 0 {
		b.ProcessAlive = No
	}

	if task.LogPath != "" && g.Logs != nil {
		if sig, err := g.Logs.Scan(task.LogPath); err == nil {
			b.Log = *sig
			b.LogFound = true
		}
	}

	if g.Checklist != nil {
		if cs, err := g.Checklist.State(task.ID); err == nil {
			b.Checklist = cs
		}
	}

	g.resolvePR(ctx, task, b)
	return b
}

// resolvePR fills PRRef and PRState, preferring a reference seen in the
// log, then one recorded on the task, then a branch search.
func (g *Gatherer) resolvePR(ctx context.Context, task *store.Task, b *Bundle) {
	if g.Platform == nil {
		return
	}

	ref := b.Log.PRRef
	if ref == "" && task.PRReference != "" && task.PRReference != store.NoPR {
		ref = task.PRReference
	}

	if ref != "" {
		b.PRRef = ref
		if state, err := g.Platform.PullRequestState(ctx, ref); err == nil {
			b.PRState = state
		}
		return
	}

	if task.Branch == "" {
		b.PRState = PRNone
		return
	}
	found, state, err := g.Platform.FindPullRequestByBranch(ctx, task.Branch)
	if err != nil {
		return // stays unknown
	}
	b.PRRef = found
	b.PRState = state
}

// Summary renders a one-line evidence digest for audit logging.
func (b *Bundle) Summary() string {
	marker := string(b.Log.Marker)
	if marker == "" {
		marker = "none"
	}
	exit := "none"
	if b.Log.ExitCode != nil {
		exit = strconv.Itoa(*b.Log.ExitCode)
	}
	return "alive=" + b.ProcessAlive.String() +
		" marker=" + marker +
		" exit=" + exit +
		" output=" + boolWord(b.Log.HasOutput) +
		" checklist=" + string(b.Checklist) +
		" pr=" + string(b.PRState) + prRefSuffix(b.PRRef)
}

func prRefSuffix(ref string) string {
	if ref == "" {
		return ""
	}
	return "(" + ref + ")"
}

func boolWord(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
