package store

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a requested status change is not
// in the adjacency table. No state is mutated when it fires.
var ErrIllegalTransition = errors.New("illegal state transition")

// ErrTaskNotFound is returned when a task id has no row in the store.
var ErrTaskNotFound = errors.New("task not found")

// legalTransitions is the full adjacency table of the task lifecycle.
// Cancellation is handled separately: it is legal from any non-terminal
// state (see CanTransition).
var legalTransitions = map[TaskStatus][]TaskStatus{
	StatusQueued:       {StatusDispatched},
	StatusDispatched:   {StatusRunning, StatusEvaluating},
	StatusRunning:      {StatusEvaluating},
	StatusEvaluating:   {StatusComplete, StatusRetrying, StatusFailed, StatusBlocked},
	StatusRetrying:     {StatusDispatched},
	StatusBlocked:      {StatusQueued},
	StatusComplete:     {StatusPRReview},
	StatusPRReview:     {StatusReviewTriage},
	StatusReviewTriage: {StatusMerging, StatusComplete},
	StatusMerging:      {StatusVerified},
	StatusVerified:     {StatusDeployed},
}

var terminalStatuses = map[TaskStatus]bool{
	StatusDeployed:  true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// runningLike are the states in which a worker may still be making
// progress; only these are eligible for stuck detection.
var runningLike = map[TaskStatus]bool{
	StatusDispatched: true,
	StatusRunning:    true,
	StatusEvaluating: true,
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(s TaskStatus) bool { return terminalStatuses[s] }

// IsRunningLike reports whether a worker could still be active in this state.
func IsRunningLike(s TaskStatus) bool { return runningLike[s] }

// IsValidStatus reports whether s is one of the known lifecycle states.
func IsValidStatus(s TaskStatus) bool {
	if terminalStatuses[s] {
		return true
	}
	if _, ok := legalTransitions[s]; ok {
		return true
	}
	return false
}

// CanTransition reports whether from → to is permitted by the lifecycle.
func CanTransition(from, to TaskStatus) bool {
	if to == StatusCancelled {
		return !IsTerminal(from)
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition wraps CanTransition into the error the store surfaces.
func checkTransition(id string, from, to TaskStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("task %s: %s -> %s: %w", id, from, to, ErrIllegalTransition)
	}
	return nil
}
