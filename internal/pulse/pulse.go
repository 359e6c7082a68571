// Package pulse drives the supervisor's control loop. One pulse advances
// every active task by at most one step: dispatch when the breaker
// allows, confirm worker liveness, evaluate exited workers, advance the
// pull-request lifecycle, and run due stuck checks. Tasks are processed
// sequentially within a pulse; the only cross-pulse shared state is the
// breaker record, which carries its own lock.
package pulse

import (
	"context"
	"fmt"
	"time"

	"github.com/okral/overseer/internal/breaker"
	"github.com/okral/overseer/internal/evidence"
	"github.com/okral/overseer/internal/logging"
	"github.com/okral/overseer/internal/metrics"
	"github.com/okral/overseer/internal/store"
	"github.com/okral/overseer/internal/verdict"
)

// Dispatcher starts a worker for a queued or retrying task.
type Dispatcher interface {
	Dispatch(task *store.Task) error
}

// Assessor classifies a task's current attempt.
type Assessor interface {
	Assess(ctx context.Context, taskID string) (verdict.Verdict, error)
}

// Gate is the circuit breaker surface the loop needs.
type Gate interface {
	Check(ctx context.Context) breaker.Decision
	RecordFailure(ctx context.Context, taskID, reason string) error
	RecordSuccess(ctx context.Context) error
}

// StuckChecker runs advisory milestone checks.
type StuckChecker interface {
	CheckTask(ctx context.Context, task *store.Task) (*store.StuckCheck, error)
	ResolveOnSuccess(ctx context.Context, taskID string)
}

// ReviewClient is the platform surface used to advance the PR lifecycle.
type ReviewClient interface {
	PullRequestState(ctx context.Context, ref string) (evidence.PRState, error)
	ReviewRequested(ctx context.Context, ref string) (bool, error)
}

// Loop is one supervisor control loop.
type Loop struct {
	Store    *store.Store
	Launch   Dispatcher
	Engine   Assessor
	Breaker  Gate
	Detector StuckChecker
	Proc     evidence.ProcessInspector
	Review   ReviewClient
	Log      *logging.Logger
}

// Pulse advances all active tasks by one step. Per-task problems are
// logged and skipped; only a store-level failure aborts the pulse.
func (l *Loop) Pulse(ctx context.Context) error {
	start := time.Now()
	tasks, err := l.Store.ListActive()
	if err != nil {
		return fmt.Errorf("list active tasks: %w", err)
	}

	for i := range tasks {
		task := &tasks[i]
		if err := l.step(ctx, task); err != nil {
			l.Log.Warnf("pulse task=%s: %v", task.ID, err)
		}
	}

	l.publishGauges()
	metrics.PulseDuration.Observe(time.Since(start).Seconds())
	return nil
}

// step advances one task according to its current state.
func (l *Loop) step(ctx context.Context, task *store.Task) error {
	switch task.Status {
	case store.StatusQueued, store.StatusRetrying:
		return l.dispatch(ctx, task)
	case store.StatusDispatched:
		return l.confirmOrEvaluate(ctx, task)
	case store.StatusRunning, store.StatusEvaluating:
		return l.superviseRunning(ctx, task)
	case store.StatusComplete, store.StatusPRReview, store.StatusMerging:
		return l.advanceReview(ctx, task)
	default:
		// Blocked, ReviewTriage and terminal states wait for an
		// administrative decision.
		return nil
	}
}

func (l *Loop) dispatch(ctx context.Context, task *store.Task) error {
	decision := l.Breaker.Check(ctx)
	if !decision.Allowed {
		l.Log.Printf("dispatch denied task=%s: breaker open, %s remaining",
			task.ID, decision.Remaining.Round(time.Second))
		return nil
	}
	if err := l.Launch.Dispatch(task); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	metrics.Dispatches.Inc()
	return nil
}

// confirmOrEvaluate promotes a dispatched task to Running once its worker
// is confirmed alive, or evaluates it if the worker already exited.
func (l *Loop) confirmOrEvaluate(ctx context.Context, task *store.Task) error {
	if l.alive(task) {
		return l.Store.Transition(task.ID, store.StatusRunning, "worker process confirmed alive")
	}
	return l.evaluate(ctx, task)
}

func (l *Loop) superviseRunning(ctx context.Context, task *store.Task) error {
	if task.Status == store.StatusRunning && l.alive(task) {
		// Still working; only the advisory detector has anything to do.
		return l.runStuckCheck(ctx, task)
	}
	return l.evaluate(ctx, task)
}

func (l *Loop) alive(task *store.Task) bool {
	if l.Proc == nil || task.PID <= 0 {
		return false
	}
	alive, err := l.Proc.Alive(task.PID)
	return err == nil && alive
}

// evaluate assesses the attempt and applies the verdict. The retry
// exhaustion rule lives here, in the state-machine layer: the engine
// classifies the attempt, this layer decides policy.
func (l *Loop) evaluate(ctx context.Context, task *store.Task) error {
	v, err := l.Engine.Assess(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("assess: %w", err)
	}
	metrics.Verdicts.WithLabelValues(v.Kind.String()).Inc()

	if v.Kind == verdict.Alive {
		// Worker resumed between the liveness probe and the gather;
		// leave the task alone this cycle.
		return nil
	}

	if task.Status != store.StatusEvaluating {
		if err := l.Store.Transition(task.ID, store.StatusEvaluating, "worker process exited"); err != nil {
			return err
		}
	}

	// Re-read: an administrative cancel may have landed while the
	// (possibly slow) judgment call was in flight. A verdict for a task
	// no longer in Evaluating is simply discarded.
	current, err := l.Store.GetTask(task.ID)
	if err != nil {
		return err
	}
	if current.Status != store.StatusEvaluating {
		l.Log.Printf("verdict for task=%s discarded: state is now %s", task.ID, current.Status)
		return nil
	}

	switch v.Kind {
	case verdict.Complete:
		return l.applyComplete(ctx, current, v)
	case verdict.Retry:
		return l.applyRetry(ctx, current, v)
	default:
		return l.applyFailed(ctx, current, v.Reason)
	}
}

func (l *Loop) applyComplete(ctx context.Context, task *store.Task, v verdict.Verdict) error {
	if err := l.Store.SetPRReference(task.ID, v.Ref); err != nil {
		return err
	}
	if err := l.Store.Transition(task.ID, store.StatusComplete, "verdict complete:"+v.Ref); err != nil {
		return err
	}
	if err := l.Breaker.RecordSuccess(ctx); err != nil {
		l.Log.Warnf("breaker success abandoned: %v", err)
	}
	l.Detector.ResolveOnSuccess(ctx, task.ID)
	return nil
}

func (l *Loop) applyRetry(ctx context.Context, task *store.Task, v verdict.Verdict) error {
	if task.Retries >= task.MaxRetries {
		// Exhausted: the same verdict is reinterpreted as failure.
		return l.applyFailed(ctx, task, "retries exhausted: "+v.Reason)
	}
	if err := l.Store.IncrementRetries(task.ID); err != nil {
		return err
	}
	return l.Store.Transition(task.ID, store.StatusRetrying, "verdict retry:"+v.Reason)
}

func (l *Loop) applyFailed(ctx context.Context, task *store.Task, reason string) error {
	if err := l.Store.SetError(task.ID, reason); err != nil {
		return err
	}
	if err := l.Store.Transition(task.ID, store.StatusFailed, "verdict failed:"+reason); err != nil {
		return err
	}
	if err := l.Breaker.RecordFailure(ctx, task.ID, reason); err != nil {
		l.Log.Warnf("breaker failure abandoned: %v", err)
	}
	return nil
}

func (l *Loop) runStuckCheck(ctx context.Context, task *store.Task) error {
	if l.Detector == nil {
		return nil
	}
	check, err := l.Detector.CheckTask(ctx, task)
	if err != nil {
		return fmt.Errorf("stuck check: %w", err)
	}
	if check != nil {
		metrics.StuckChecks.WithLabelValues(boolWord(check.IsStuck)).Inc()
	}
	return nil
}

// advanceReview moves completed tasks through the pull-request lifecycle
// based on the platform's view: an open PR enters review, requested
// changes enter triage, a confirmed merge is verified.
func (l *Loop) advanceReview(ctx context.Context, task *store.Task) error {
	if l.Review == nil || task.PRReference == "" || task.PRReference == store.NoPR {
		return nil
	}

	switch task.Status {
	case store.StatusComplete:
		state, err := l.Review.PullRequestState(ctx, task.PRReference)
		if err != nil {
			return nil // platform unreachable; try again next pulse
		}
		if state == evidence.PROpen {
			return l.Store.Transition(task.ID, store.StatusPRReview, "pull request open")
		}
	case store.StatusPRReview:
		requested, err := l.Review.ReviewRequested(ctx, task.PRReference)
		if err != nil {
			return nil
		}
		if requested {
			return l.Store.Transition(task.ID, store.StatusReviewTriage, "reviewer requested changes")
		}
	case store.StatusMerging:
		state, err := l.Review.PullRequestState(ctx, task.PRReference)
		if err != nil {
			return nil
		}
		if state == evidence.PRMerged {
			return l.Store.Transition(task.ID, store.StatusVerified, "merge confirmed")
		}
	}
	return nil
}

func (l *Loop) publishGauges() {
	counts, err := l.Store.CountByStatus()
	if err != nil {
		return
	}
	metrics.TasksByState.Reset()
	for status, n := range counts {
		metrics.TasksByState.WithLabelValues(string(status)).Set(float64(n))
	}

	st, err := l.Store.BreakerRow()
	if err != nil {
		return
	}
	if st.Tripped {
		metrics.BreakerOpen.Set(1)
	} else {
		metrics.BreakerOpen.Set(0)
	}
}

func boolWord(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
