package pulse

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okral/overseer/internal/breaker"
	"github.com/okral/overseer/internal/evidence"
	"github.com/okral/overseer/internal/store"
	"github.com/okral/overseer/internal/verdict"
)

type fakeDispatcher struct {
	dispatched []string
	err        error
	store      *store.Store
}

func (f *fakeDispatcher) Dispatch(task *store.Task) error {
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, task.ID)
	if err := f.store.Transition(task.ID, store.StatusDispatched, "worker spawned"); err != nil {
		return err
	}
	return f.store.SetWorker(task.ID, 4242, "/logs/task.log")
}

type fakeAssessor struct {
	verdicts map[string]verdict.Verdict
	calls    int
}

func (f *fakeAssessor) Assess(ctx context.Context, taskID string) (verdict.Verdict, error) {
	f.calls++
	v, ok := f.verdicts[taskID]
	if !ok {
		return verdict.Verdict{}, errors.New("no verdict staged")
	}
	return v, nil
}

type fakeGate struct {
	allowed   bool
	failures  []string
	successes int
}

func (f *fakeGate) Check(ctx context.Context) breaker.Decision {
	return breaker.Decision{Allowed: f.allowed}
}

func (f *fakeGate) RecordFailure(ctx context.Context, taskID, reason string) error {
	f.failures = append(f.failures, taskID+": "+reason)
	return nil
}

func (f *fakeGate) RecordSuccess(ctx context.Context) error {
	f.successes++
	return nil
}

type fakeDetector struct {
	checked  []string
	resolved []string
}

func (f *fakeDetector) CheckTask(ctx context.Context, task *store.Task) (*store.StuckCheck, error) {
	f.checked = append(f.checked, task.ID)
	return nil, nil
}

func (f *fakeDetector) ResolveOnSuccess(ctx context.Context, taskID string) {
	f.resolved = append(f.resolved, taskID)
}

type fakeProc struct{ alive map[int]bool }

func (f fakeProc) Alive(pid int) (bool, error) { return f.alive[pid], nil }

type fakeReview struct {
	prState   evidence.PRState
	requested bool
	err       error
}

func (f fakeReview) PullRequestState(ctx context.Context, ref string) (evidence.PRState, error) {
	return f.prState, f.err
}

func (f fakeReview) ReviewRequested(ctx context.Context, ref string) (bool, error) {
	return f.requested, f.err
}

type fixture struct {
	loop     *Loop
	store    *store.Store
	launch   *fakeDispatcher
	assess   *fakeAssessor
	gate     *fakeGate
	detector *fakeDetector
	proc     fakeProc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:    s,
		launch:   &fakeDispatcher{store: s},
		assess:   &fakeAssessor{verdicts: map[string]verdict.Verdict{}},
		gate:     &fakeGate{allowed: true},
		detector: &fakeDetector{},
		proc:     fakeProc{alive: map[int]bool{}},
	}
	f.loop = &Loop{
		Store:    s,
		Launch:   f.launch,
		Engine:   f.assess,
		Breaker:  f.gate,
		Detector: f.detector,
		Proc:     f.proc,
	}
	return f
}

func (f *fixture) mustStatus(t *testing.T, id string, want store.TaskStatus) {
	t.Helper()
	task, err := f.store.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask(%s): %v", id, err)
	}
	if task.Status != want {
		t.Fatalf("task %s: status %s, want %s", id, task.Status, want)
	}
}

func TestPulse_DispatchesQueued(t *testing.T) {
	f := newFixture(t)
	f.store.CreateTask("1", "org/repo", "main", "fast", 3)

	if err := f.loop.Pulse(context.Background()); err != nil {
		t.Fatalf("Pulse: %v", err)
	}
	if len(f.launch.dispatched) != 1 || f.launch.dispatched[0] != "1" {
		t.Fatalf("expected task 1 dispatched, got %v", f.launch.dispatched)
	}
	f.mustStatus(t, "1", store.StatusDispatched)
}

func TestPulse_BreakerDeniesDispatch(t *testing.T) {
	f := newFixture(t)
	f.gate.allowed = false
	f.store.CreateTask("1", "org/repo", "main", "fast", 3)

	f.loop.Pulse(context.Background())
	if len(f.launch.dispatched) != 0 {
		t.Fatalf("dispatch happened with breaker open: %v", f.launch.dispatched)
	}
	f.mustStatus(t, "1", store.StatusQueued)
}

func TestPulse_ConfirmsDispatchedAlive(t *testing.T) {
	f := newFixture(t)
	f.store.CreateTask("1", "org/repo", "main", "fast", 3)
	f.loop.Pulse(context.Background()) // queued -> dispatched

	f.proc.alive[4242] = true
	f.loop.Proc = f.proc
	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusRunning)
}

func TestPulse_RunningAliveOnlyStuckChecked(t *testing.T) {
	f := newFixture(t)
	f.store.CreateTask("1", "org/repo", "main", "fast", 3)
	f.loop.Pulse(context.Background())
	f.proc.alive[4242] = true
	f.loop.Proc = f.proc
	f.loop.Pulse(context.Background()) // -> running

	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusRunning)
	if f.assess.calls != 0 {
		t.Errorf("live worker was assessed %d times", f.assess.calls)
	}
	if len(f.detector.checked) == 0 {
		t.Error("running task never offered to the stuck detector")
	}
}

// runToRunning drives a fresh task to Running with a live worker.
func runToRunning(t *testing.T, f *fixture, id string) {
	t.Helper()
	f.store.CreateTask(id, "org/repo", "main", "fast", 3)
	f.loop.Pulse(context.Background())
	f.proc.alive[4242] = true
	f.loop.Proc = f.proc
	f.loop.Pulse(context.Background())
	f.mustStatus(t, id, store.StatusRunning)
}

func TestPulse_CompleteVerdict(t *testing.T) {
	f := newFixture(t)
	runToRunning(t, f, "1")

	f.proc.alive[4242] = false
	f.assess.verdicts["1"] = verdict.Verdict{Kind: verdict.Complete, Ref: "org/repo#42"}
	if err := f.loop.Pulse(context.Background()); err != nil {
		t.Fatalf("Pulse: %v", err)
	}

	f.mustStatus(t, "1", store.StatusComplete)
	task, _ := f.store.GetTask("1")
	if task.PRReference != "org/repo#42" {
		t.Errorf("pr reference not recorded: %q", task.PRReference)
	}
	if f.gate.successes != 1 {
		t.Errorf("breaker success not recorded: %d", f.gate.successes)
	}
	if len(f.detector.resolved) != 1 {
		t.Errorf("stuck advisory not resolved: %v", f.detector.resolved)
	}

	// The audit trail shows the pass through Evaluating.
	log, _ := f.store.Transitions("1")
	var sawEvaluating bool
	for _, tr := range log {
		if tr.To == store.StatusEvaluating {
			sawEvaluating = true
		}
	}
	if !sawEvaluating {
		t.Error("verdict applied without passing through evaluating")
	}
}

func TestPulse_RetryVerdict(t *testing.T) {
	f := newFixture(t)
	runToRunning(t, f, "1")

	f.proc.alive[4242] = false
	f.assess.verdicts["1"] = verdict.Verdict{Kind: verdict.Retry, Reason: "tests failing"}
	f.loop.Pulse(context.Background())

	f.mustStatus(t, "1", store.StatusRetrying)
	task, _ := f.store.GetTask("1")
	if task.Retries != 1 {
		t.Errorf("retries not incremented: %d", task.Retries)
	}
	if len(f.gate.failures) != 0 {
		t.Errorf("retry recorded as breaker failure: %v", f.gate.failures)
	}

	// Next pulse re-dispatches the retrying task.
	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusDispatched)
}

func TestPulse_RetryExhaustionBecomesFailure(t *testing.T) {
	f := newFixture(t)
	runToRunning(t, f, "1")
	for i := 0; i < 3; i++ {
		f.store.IncrementRetries("1")
	}

	f.proc.alive[4242] = false
	f.assess.verdicts["1"] = verdict.Verdict{Kind: verdict.Retry, Reason: "tests failing"}
	f.loop.Pulse(context.Background())

	f.mustStatus(t, "1", store.StatusFailed)
	task, _ := f.store.GetTask("1")
	if !strings.Contains(task.Error, "retries exhausted") {
		t.Errorf("exhaustion reason not recorded: %q", task.Error)
	}
	if len(f.gate.failures) != 1 {
		t.Errorf("exhaustion not recorded as breaker failure: %v", f.gate.failures)
	}
}

func TestPulse_FailedVerdict(t *testing.T) {
	f := newFixture(t)
	runToRunning(t, f, "1")

	f.proc.alive[4242] = false
	f.assess.verdicts["1"] = verdict.Verdict{Kind: verdict.Failed, Reason: "worker crashed"}
	f.loop.Pulse(context.Background())

	f.mustStatus(t, "1", store.StatusFailed)
	if len(f.gate.failures) != 1 || !strings.Contains(f.gate.failures[0], "worker crashed") {
		t.Errorf("breaker failure not recorded: %v", f.gate.failures)
	}
}

func TestPulse_AliveVerdictLeavesTaskAlone(t *testing.T) {
	// The liveness probe said dead but the gather saw the worker again.
	f := newFixture(t)
	runToRunning(t, f, "1")

	f.proc.alive[4242] = false
	f.assess.verdicts["1"] = verdict.Verdict{Kind: verdict.Alive}
	f.loop.Pulse(context.Background())

	f.mustStatus(t, "1", store.StatusRunning)
}

func TestEvaluate_CancelDuringJudgmentDiscardsVerdict(t *testing.T) {
	f := newFixture(t)
	runToRunning(t, f, "1")
	f.store.Transition("1", store.StatusEvaluating, "worker process exited")

	// The snapshot the loop holds predates the operator's cancel.
	stale, _ := f.store.GetTask("1")
	f.store.Transition("1", store.StatusCancelled, "operator cancel")

	f.assess.verdicts["1"] = verdict.Verdict{Kind: verdict.Complete, Ref: "org/repo#42"}
	if err := f.loop.evaluate(context.Background(), stale); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	f.mustStatus(t, "1", store.StatusCancelled)
	task, _ := f.store.GetTask("1")
	if task.PRReference != "" {
		t.Errorf("discarded verdict still wrote pr reference: %q", task.PRReference)
	}
	if f.gate.successes != 0 {
		t.Error("discarded verdict still recorded breaker success")
	}
}

func TestPulse_AdvanceReview(t *testing.T) {
	f := newFixture(t)
	runToRunning(t, f, "1")
	f.proc.alive[4242] = false
	f.assess.verdicts["1"] = verdict.Verdict{Kind: verdict.Complete, Ref: "42"}
	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusComplete)

	// Open PR: complete -> pr_review.
	f.loop.Review = fakeReview{prState: evidence.PROpen}
	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusPRReview)

	// No changes requested: stays in review.
	f.loop.Review = fakeReview{requested: false}
	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusPRReview)

	// Changes requested: -> review_triage, which waits for an operator.
	f.loop.Review = fakeReview{requested: true}
	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusReviewTriage)
	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusReviewTriage)

	// Operator sends it to merge; the loop confirms the merge.
	f.store.Transition("1", store.StatusMerging, "triage: merge")
	f.loop.Review = fakeReview{prState: evidence.PRMerged}
	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusVerified)
}

func TestPulse_ReviewPlatformErrorRetriesNextPulse(t *testing.T) {
	f := newFixture(t)
	runToRunning(t, f, "1")
	f.proc.alive[4242] = false
	f.assess.verdicts["1"] = verdict.Verdict{Kind: verdict.Complete, Ref: "42"}
	f.loop.Pulse(context.Background())

	f.loop.Review = fakeReview{err: errors.New("api down")}
	if err := f.loop.Pulse(context.Background()); err != nil {
		t.Fatalf("Pulse: %v", err)
	}
	f.mustStatus(t, "1", store.StatusComplete)
}

func TestPulse_NoPRSentinelSkipsReview(t *testing.T) {
	f := newFixture(t)
	runToRunning(t, f, "1")
	f.proc.alive[4242] = false
	f.assess.verdicts["1"] = verdict.Verdict{Kind: verdict.Complete, Ref: store.NoPR}
	f.loop.Pulse(context.Background())

	f.loop.Review = fakeReview{prState: evidence.PROpen}
	f.loop.Pulse(context.Background())
	f.mustStatus(t, "1", store.StatusComplete)
}

func TestPulse_PerTaskErrorsDoNotAbort(t *testing.T) {
	f := newFixture(t)
	runToRunning(t, f, "1")
	f.store.CreateTask("2", "org/repo", "main", "fast", 3)

	// Task 1 has no staged verdict, so its assessment errors; task 2 must
	// still be dispatched in the same pulse.
	f.proc.alive[4242] = false
	if err := f.loop.Pulse(context.Background()); err != nil {
		t.Fatalf("Pulse: %v", err)
	}
	if len(f.launch.dispatched) != 2 {
		t.Fatalf("later task skipped after earlier task error: %v", f.launch.dispatched)
	}
}

func TestPulse_DispatchFailureSurfacesOnNextEvaluate(t *testing.T) {
	f := newFixture(t)
	f.store.CreateTask("1", "org/repo", "main", "fast", 3)
	f.launch.err = errors.New("worker binary missing")

	if err := f.loop.Pulse(context.Background()); err != nil {
		t.Fatalf("Pulse: %v", err)
	}
	f.mustStatus(t, "1", store.StatusQueued)
}
