// Package stuck asks the AI-judgment model, at configured elapsed-time
// milestones, whether a long-running task is still making progress. Its
// verdicts are advisory only: it persists checks and raises
// notifications but never mutates task state.
package stuck

import (
	"context"
	"errors"
	"time"

	"github.com/okral/overseer/internal/judge"
	"github.com/okral/overseer/internal/logging"
	"github.com/okral/overseer/internal/store"
)

// Notifier raises and resolves the external stuck advisory.
type Notifier interface {
	TaskStuck(ctx context.Context, task *store.Task, check *store.StuckCheck) error
	TaskRecovered(ctx context.Context, taskID string) error
}

// LogTailer provides the bounded log tail included in the judgment
// context. The evidence package's log reader satisfies this through a
// small adapter; tests use fakes.
type LogTailer interface {
	Tail(path string) []string
}

// Detector runs milestone checks for running tasks.
type Detector struct {
	Store      *store.Store
	Judge      judge.Judge
	Notify     Notifier
	Tailer     LogTailer
	Log        *logging.Logger
	Milestones []int   // ascending, minutes
	Confidence float64 // notification threshold

	now func() time.Time // test hook
}

// New wires a detector with the configured milestones and threshold.
func New(s *store.Store, j judge.Judge, n Notifier, t LogTailer, log *logging.Logger, milestones []int, confidence float64) *Detector {
	return &Detector{
		Store:      s,
		Judge:      j,
		Notify:     n,
		Tailer:     t,
		Log:        log,
		Milestones: milestones,
		Confidence: confidence,
		now:        time.Now,
	}
}

// CheckTask evaluates the task's highest due, not-yet-checked milestone.
// Tasks that are not running-like, never started, or between milestones
// are skipped. The (task, milestone) uniqueness invariant in the store
// makes repeated invocations idempotent.
func (d *Detector) CheckTask(ctx context.Context, task *store.Task) (*store.StuckCheck, error) {
	if !store.IsRunningLike(task.Status) || !task.Started() {
		return nil, nil
	}

	elapsed := int(d.now().UTC().Sub(task.StartedAt).Minutes())
	milestone, err := d.dueMilestone(task.ID, elapsed)
	if err != nil {
		return nil, err
	}
	if milestone == 0 {
		return nil, nil
	}

	check := d.evaluate(ctx, task, milestone, elapsed)

	if err := d.Store.InsertStuckCheck(check); err != nil {
		if errors.Is(err, store.ErrDuplicateCheck) {
			// Another pulse got there first; nothing to do.
			return nil, nil
		}
		return nil, err
	}

	d.Log.Printf("stuck check task=%s milestone=%dm elapsed=%dm stuck=%v confidence=%.2f",
		task.ID, milestone, elapsed, check.IsStuck, check.Confidence)

	if check.IsStuck && check.Confidence >= d.Confidence {
		d.raise(ctx, task, check)
	}
	return check, nil
}

// dueMilestone returns the highest milestone at or below the elapsed
// minutes that has no record yet, or 0 when none is due.
func (d *Detector) dueMilestone(taskID string, elapsed int) (int, error) {
	due := 0
	for _, m := range d.Milestones {
		if m > elapsed {
			break
		}
		due = m
	}
	if due == 0 {
		return 0, nil
	}
	checked, err := d.Store.HasStuckCheck(taskID, due)
	if err != nil {
		return 0, err
	}
	if checked {
		return 0, nil
	}
	return due, nil
}

// evaluate invokes the judgment model and parses its structured answer.
// Any failure along the way defaults to not-stuck with zero confidence:
// absence of evidence of being stuck is not evidence of being stuck, and
// a failed check must never alarm a human.
func (d *Detector) evaluate(ctx context.Context, task *store.Task, milestone, elapsed int) *store.StuckCheck {
	check := &store.StuckCheck{
		TaskID:           task.ID,
		MilestoneMinutes: milestone,
		ElapsedMinutes:   elapsed,
	}

	if d.Judge == nil {
		return check
	}

	prior, err := d.Store.StuckChecks(task.ID)
	if err != nil {
		d.Log.Warnf("stuck history unavailable for task %s: %v", task.ID, err)
	}
	history, err := d.Store.Transitions(task.ID)
	if err != nil {
		d.Log.Warnf("transition history unavailable for task %s: %v", task.ID, err)
	}
	var tail []string
	if d.Tailer != nil && task.LogPath != "" {
		tail = d.Tailer.Tail(task.LogPath)
	}

	resp, err := d.Judge.Evaluate(ctx, judge.Request{
		TaskID: task.ID,
		Prompt: detectionPrompt(task, elapsed, prior, history, tail),
	})
	if err != nil {
		d.Log.Warnf("stuck judge unavailable for task %s: %v", task.ID, err)
		return check
	}

	j, err := parseJudgment(resp.Output)
	if err != nil {
		d.Log.Warnf("stuck judge response for task %s rejected: %v", task.ID, err)
		return check
	}

	check.IsStuck = j.IsStuck
	check.Confidence = j.Confidence
	check.Reasoning = j.Reasoning
	check.SuggestedActions = j.actions()
	return check
}

// ResolveOnSuccess closes any outstanding stuck advisory once the task
// has completed.
func (d *Detector) ResolveOnSuccess(ctx context.Context, taskID string) {
	if d.Notify == nil {
		return
	}
	outstanding, err := d.Store.HasOutstandingAdvisory(taskID)
	if err != nil || !outstanding {
		return
	}
	if err := d.Notify.TaskRecovered(ctx, taskID); err != nil {
		d.Log.Warnf("stuck advisory resolution failed for task %s: %v", taskID, err)
	}
}

func (d *Detector) raise(ctx context.Context, task *store.Task, check *store.StuckCheck) {
	if d.Notify == nil {
		return
	}
	if err := d.Notify.TaskStuck(ctx, task, check); err != nil {
		d.Log.Warnf("stuck notification failed for task %s: %v", task.ID, err)
		return
	}
	check.Notified = true
	if err := d.Store.MarkStuckNotified(check.ID); err != nil {
		d.Log.Warnf("mark stuck notified failed for task %s: %v", task.ID, err)
	}
}
