package dispatch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okral/overseer/internal/config"
	"github.com/okral/overseer/internal/store"
)

func testLauncher(t *testing.T, worker config.Worker) (*Launcher, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	l := &Launcher{Store: s, Worker: worker, LogDir: filepath.Join(dir, "logs")}
	return l, s
}

func TestDispatch(t *testing.T) {
	l, s := testLauncher(t, config.Worker{Cmd: "true"})
	task, _ := s.CreateTask("1", "org/repo", "feat/login", "fast", 3)

	if err := l.Dispatch(task); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got, _ := s.GetTask("1")
	if got.Status != store.StatusDispatched {
		t.Errorf("expected dispatched, got %s", got.Status)
	}
	if got.PID <= 0 {
		t.Errorf("pid not recorded: %d", got.PID)
	}
	if !strings.Contains(got.LogPath, "task-1-") {
		t.Errorf("log path not per-attempt: %q", got.LogPath)
	}
	if _, err := os.Stat(got.LogPath); err != nil {
		t.Errorf("worker log not created: %v", err)
	}
}

func TestDispatch_CapturesWorkerOutput(t *testing.T) {
	l, s := testLauncher(t, config.Worker{Cmd: "echo", Args: []string{"hello from worker"}})
	task, _ := s.CreateTask("1", "org/repo", "main", "fast", 3)

	if err := l.Dispatch(task); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got, _ := s.GetTask("1")
	// The detached worker writes asynchronously; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		data, _ := os.ReadFile(got.LogPath)
		if strings.Contains(string(data), "hello from worker") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker output never landed in %s", got.LogPath)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispatch_DistinctLogsPerAttempt(t *testing.T) {
	l, s := testLauncher(t, config.Worker{Cmd: "true"})
	task, _ := s.CreateTask("1", "org/repo", "main", "fast", 3)

	if err := l.Dispatch(task); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	first, _ := s.GetTask("1")

	// Walk the task back around the retry loop and dispatch again.
	s.Transition("1", store.StatusEvaluating, "")
	s.IncrementRetries("1")
	s.Transition("1", store.StatusRetrying, "")
	retrying, _ := s.GetTask("1")
	if err := l.Dispatch(retrying); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	second, _ := s.GetTask("1")

	if first.LogPath == second.LogPath {
		t.Errorf("retry reused the previous attempt's log: %q", first.LogPath)
	}
}

func TestDispatch_NoWorkerConfigured(t *testing.T) {
	l, s := testLauncher(t, config.Worker{})
	task, _ := s.CreateTask("1", "org/repo", "main", "fast", 3)

	if err := l.Dispatch(task); err == nil {
		t.Fatal("expected error without a worker command")
	}
	got, _ := s.GetTask("1")
	if got.Status != store.StatusQueued {
		t.Errorf("failed dispatch moved the task: %s", got.Status)
	}
}

func TestDispatch_MissingBinaryLeavesTaskQueued(t *testing.T) {
	l, s := testLauncher(t, config.Worker{Cmd: "definitely-not-a-real-binary-xyz"})
	task, _ := s.CreateTask("1", "org/repo", "main", "fast", 3)

	if err := l.Dispatch(task); err == nil {
		t.Fatal("expected error for missing worker binary")
	}

	got, _ := s.GetTask("1")
	if got.Status != store.StatusQueued {
		t.Errorf("failed dispatch moved the task: %s", got.Status)
	}
	// The orphaned log file is cleaned up.
	entries, _ := os.ReadDir(l.LogDir)
	if len(entries) != 0 {
		t.Errorf("orphaned log left behind: %v", entries)
	}
}
