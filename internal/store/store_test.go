package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file not created")
	}
}

func TestCreateTask(t *testing.T) {
	s := testStore(t)

	task, err := s.CreateTask("12", "org/repo", "feat/login", "thorough", 5)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if task.ID != "12" {
		t.Errorf("expected ID 12, got %s", task.ID)
	}
	if task.Status != StatusQueued {
		t.Errorf("expected status queued, got %s", task.Status)
	}
	if task.ModelTier != "thorough" {
		t.Errorf("expected tier thorough, got %s", task.ModelTier)
	}
	if task.MaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", task.MaxRetries)
	}
	if task.Started() {
		t.Error("new task should not be started")
	}
}

func TestCreateTask_Defaults(t *testing.T) {
	s := testStore(t)

	task, err := s.CreateTask("1", "org/repo", "main", "", 0)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ModelTier != "fast" {
		t.Errorf("expected default tier fast, got %q", task.ModelTier)
	}
	if task.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", task.MaxRetries)
	}
}

func TestCreateTask_HierarchicalID(t *testing.T) {
	s := testStore(t)

	if _, err := s.CreateTask("12", "org/repo", "main", "fast", 3); err != nil {
		t.Fatalf("CreateTask parent: %v", err)
	}
	child, err := s.CreateTask("12.3", "org/repo", "feat/sub", "fast", 3)
	if err != nil {
		t.Fatalf("CreateTask subtask: %v", err)
	}
	if child.ID != "12.3" {
		t.Errorf("expected ID 12.3, got %s", child.ID)
	}
}

func TestCreateTask_DuplicateID(t *testing.T) {
	s := testStore(t)

	if _, err := s.CreateTask("1", "org/repo", "main", "fast", 3); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := s.CreateTask("1", "org/repo", "main", "fast", 3); err == nil {
		t.Fatal("expected error for duplicate task id")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetTask("999")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTransition_AppendsAuditRow(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	if err := s.Transition("1", StatusDispatched, "worker spawned"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	task, err := s.GetTask("1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != StatusDispatched {
		t.Errorf("expected dispatched, got %s", task.Status)
	}

	log, err := s.Transitions("1")
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(log) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(log))
	}
	if log[0].From != StatusQueued || log[0].To != StatusDispatched {
		t.Errorf("expected queued -> dispatched, got %s -> %s", log[0].From, log[0].To)
	}
	if log[0].Reason != "worker spawned" {
		t.Errorf("expected reason recorded, got %q", log[0].Reason)
	}
}

func TestTransition_Illegal_MutatesNothing(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	err := s.Transition("1", StatusComplete, "skip ahead")
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	task, _ := s.GetTask("1")
	if task.Status != StatusQueued {
		t.Errorf("status changed on illegal transition: %s", task.Status)
	}
	log, _ := s.Transitions("1")
	if len(log) != 0 {
		t.Errorf("audit row written on illegal transition: %d rows", len(log))
	}
}

func TestTransition_NotFound(t *testing.T) {
	s := testStore(t)

	err := s.Transition("999", StatusDispatched, "")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTransition_StampsStartedAtOnce(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	s.Transition("1", StatusDispatched, "")
	first, _ := s.GetTask("1")
	if !first.Started() {
		t.Fatal("started_at not stamped on leaving queue")
	}

	// Round trip back through the queue; started_at must not move.
	s.Transition("1", StatusEvaluating, "")
	s.Transition("1", StatusBlocked, "waiting on dependency")
	s.Transition("1", StatusQueued, "unblocked")
	s.Transition("1", StatusDispatched, "")

	second, _ := s.GetTask("1")
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("started_at changed: %v -> %v", first.StartedAt, second.StartedAt)
	}
}

func TestTransition_CancelFromAnyNonTerminal(t *testing.T) {
	s := testStore(t)

	for i, status := range []TaskStatus{StatusQueued, StatusRunning, StatusPRReview} {
		id := string(rune('1' + i))
		s.CreateTask(id, "org/repo", "main", "fast", 3)
		walkTo(t, s, id, status)
		if err := s.Transition(id, StatusCancelled, "operator cancel"); err != nil {
			t.Errorf("cancel from %s: %v", status, err)
		}
	}
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)
	s.Transition("1", StatusCancelled, "")

	for _, to := range []TaskStatus{StatusQueued, StatusDispatched, StatusCancelled} {
		if err := s.Transition("1", to, ""); !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("cancelled -> %s: expected ErrIllegalTransition, got %v", to, err)
		}
	}
}

// walkTo advances a queued task along legal edges until it reaches the
// target status.
func walkTo(t *testing.T, s *Store, id string, target TaskStatus) {
	t.Helper()
	path := map[TaskStatus][]TaskStatus{
		StatusQueued:       nil,
		StatusDispatched:   {StatusDispatched},
		StatusRunning:      {StatusDispatched, StatusRunning},
		StatusEvaluating:   {StatusDispatched, StatusRunning, StatusEvaluating},
		StatusComplete:     {StatusDispatched, StatusRunning, StatusEvaluating, StatusComplete},
		StatusPRReview:     {StatusDispatched, StatusRunning, StatusEvaluating, StatusComplete, StatusPRReview},
		StatusReviewTriage: {StatusDispatched, StatusRunning, StatusEvaluating, StatusComplete, StatusPRReview, StatusReviewTriage},
		StatusMerging:      {StatusDispatched, StatusRunning, StatusEvaluating, StatusComplete, StatusPRReview, StatusReviewTriage, StatusMerging},
		StatusVerified:     {StatusDispatched, StatusRunning, StatusEvaluating, StatusComplete, StatusPRReview, StatusReviewTriage, StatusMerging, StatusVerified},
	}
	steps, ok := path[target]
	if !ok {
		t.Fatalf("no walk path to %s", target)
	}
	for _, step := range steps {
		if err := s.Transition(id, step, ""); err != nil {
			t.Fatalf("walk to %s at step %s: %v", target, step, err)
		}
	}
}

func TestFullLifecycle_AuditTrailComplete(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	walkTo(t, s, "1", StatusVerified)
	if err := s.Transition("1", StatusDeployed, "release"); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	log, err := s.Transitions("1")
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(log) != 9 {
		t.Fatalf("expected 9 audit rows for full lifecycle, got %d", len(log))
	}
	// Consecutive rows must chain: each row's from is the previous row's to.
	for i := 1; i < len(log); i++ {
		if log[i].From != log[i-1].To {
			t.Errorf("audit chain broken at row %d: %s != %s", i, log[i].From, log[i-1].To)
		}
	}
}

func TestListActive_ExcludesTerminal(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)
	s.CreateTask("2", "org/repo", "main", "fast", 3)
	s.CreateTask("3", "org/repo", "main", "fast", 3)
	s.Transition("2", StatusCancelled, "")
	walkTo(t, s, "3", StatusEvaluating)
	s.Transition("3", StatusFailed, "gave up")

	active, err := s.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].ID != "1" {
		t.Fatalf("expected only task 1 active, got %v", active)
	}
}

func TestListTasks_FilterByStatus(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)
	s.CreateTask("2", "org/repo", "main", "fast", 3)
	s.Transition("2", StatusDispatched, "")

	queued, err := s.ListTasks("queued")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != "1" {
		t.Fatalf("expected only task 1 queued, got %v", queued)
	}

	all, _ := s.ListTasks("")
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}
}

func TestIncrementRetries(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	if err := s.IncrementRetries("1"); err != nil {
		t.Fatalf("IncrementRetries: %v", err)
	}
	if err := s.IncrementRetries("1"); err != nil {
		t.Fatalf("IncrementRetries: %v", err)
	}
	task, _ := s.GetTask("1")
	if task.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", task.Retries)
	}

	if err := s.IncrementRetries("999"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSetWorkerAndPRReference(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	if err := s.SetWorker("1", 4242, "/tmp/task-1.log"); err != nil {
		t.Fatalf("SetWorker: %v", err)
	}
	if err := s.SetPRReference("1", "org/repo#77"); err != nil {
		t.Fatalf("SetPRReference: %v", err)
	}

	task, _ := s.GetTask("1")
	if task.PID != 4242 {
		t.Errorf("expected pid 4242, got %d", task.PID)
	}
	if task.LogPath != "/tmp/task-1.log" {
		t.Errorf("expected log path recorded, got %q", task.LogPath)
	}
	if task.PRReference != "org/repo#77" {
		t.Errorf("expected pr reference, got %q", task.PRReference)
	}
}

func TestCountByStatus(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)
	s.CreateTask("2", "org/repo", "main", "fast", 3)
	s.Transition("2", StatusDispatched, "")

	counts, err := s.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusQueued] != 1 || counts[StatusDispatched] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
