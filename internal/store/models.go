package store

import "time"

// TaskStatus represents where a task sits in the supervision lifecycle.
type TaskStatus string

const (
	StatusQueued       TaskStatus = "queued"
	StatusDispatched   TaskStatus = "dispatched"
	StatusRunning      TaskStatus = "running"
	StatusEvaluating   TaskStatus = "evaluating"
	StatusRetrying     TaskStatus = "retrying"
	StatusBlocked      TaskStatus = "blocked"
	StatusComplete     TaskStatus = "complete"
	StatusPRReview     TaskStatus = "pr_review"
	StatusReviewTriage TaskStatus = "review_triage"
	StatusMerging      TaskStatus = "merging"
	StatusVerified     TaskStatus = "verified"
	StatusDeployed     TaskStatus = "deployed"
	StatusFailed       TaskStatus = "failed"
	StatusCancelled    TaskStatus = "cancelled"
)

// NoPR is the sentinel stored in pr_reference when a task completed
// without producing a pull request (e.g. verified in place).
const NoPR = "none"

// Task is one unit of dispatchable work handed to an external worker.
// IDs are hierarchical strings ("12" or "12.3" for a subtask).
type Task struct {
	ID          string     `json:"id"`
	Status      TaskStatus `json:"status"`
	Repo        string     `json:"repo"`
	Branch      string     `json:"branch"`
	ModelTier   string     `json:"model_tier"`
	LogPath     string     `json:"log_path,omitempty"`
	PID         int        `json:"pid,omitempty"`
	Retries     int        `json:"retries"`
	MaxRetries  int        `json:"max_retries"`
	PRReference string     `json:"pr_reference,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Started reports whether the task has ever left the queue.
func (t *Task) Started() bool { return !t.StartedAt.IsZero() }

// StateTransition is one row of the append-only state_log audit trail.
// Rows are never updated or deleted.
type StateTransition struct {
	ID        int64      `json:"id"`
	TaskID    string     `json:"task_id"`
	From      TaskStatus `json:"from_state"`
	To        TaskStatus `json:"to_state"`
	Reason    string     `json:"reason"`
	Timestamp time.Time  `json:"timestamp"`
}

// StuckCheck records one stuck-detection judgment for a (task, milestone)
// pair. At most one row exists per pair.
type StuckCheck struct {
	ID               int64     `json:"id"`
	TaskID           string    `json:"task_id"`
	MilestoneMinutes int       `json:"milestone_minutes"`
	ElapsedMinutes   int       `json:"elapsed_minutes"`
	Confidence       float64   `json:"confidence"`
	IsStuck          bool      `json:"is_stuck"`
	Reasoning        string    `json:"reasoning"`
	SuggestedActions string    `json:"suggested_actions"`
	Notified         bool      `json:"notified"`
	CreatedAt        time.Time `json:"created_at"`
}

// BreakerState is the process-wide circuit breaker record. A single row
// persists it across supervisor restarts; it is not tied to any one task.
type BreakerState struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Tripped             bool      `json:"tripped"`
	TrippedAt           string    `json:"tripped_at,omitempty"` // RFC3339; kept raw so corrupt values can fail closed
	LastFailureTask     string    `json:"last_failure_task,omitempty"`
	LastFailureReason   string    `json:"last_failure_reason,omitempty"`
	LastResetAt         time.Time `json:"last_reset_at,omitempty"`
	ResetReason         string    `json:"reset_reason,omitempty"`
}
