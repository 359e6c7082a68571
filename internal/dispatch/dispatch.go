// Package dispatch starts external worker processes for queued tasks.
// Workers are opaque: the supervisor only records their pid and log path
// and reads both back later as evidence.
package dispatch

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/okral/overseer/internal/config"
	"github.com/okral/overseer/internal/logging"
	"github.com/okral/overseer/internal/store"
)

// Launcher spawns one worker per dispatch and records the attempt on the
// task. Each attempt gets its own run id so retry logs never collide.
type Launcher struct {
	Store  *store.Store
	Worker config.Worker
	LogDir string
	Log    *logging.Logger
}

// Dispatch starts a worker for the task and moves it to Dispatched. The
// task must be in Queued or Retrying; anything else is rejected by the
// state machine. A worker that cannot be started leaves the task where
// it was, to be retried on the next pulse.
func (l *Launcher) Dispatch(task *store.Task) error {
	if l.Worker.Cmd == "" {
		return fmt.Errorf("no worker command configured")
	}

	runID := uuid.NewString()[:8]
	logPath := filepath.Join(l.LogDir, fmt.Sprintf("task-%s-%s.log", task.ID, runID))

	if err := os.MkdirAll(l.LogDir, 0o755); err != nil {
		return fmt.Errorf("ensure log dir: %w", err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("create worker log: %w", err)
	}
	defer logFile.Close()

	args := make([]string, len(l.Worker.Args))
	copy(args, l.Worker.Args)
	args = append(args, task.ID)

	cmd := exec.Command(l.Worker.Cmd, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(),
		"OVERSEER_TASK_ID="+task.ID,
		"OVERSEER_REPO="+task.Repo,
		"OVERSEER_BRANCH="+task.Branch,
		"OVERSEER_MODEL_TIER="+task.ModelTier,
	)
	// Detach: the worker must outlive this pulse invocation.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		os.Remove(logPath)
		return fmt.Errorf("start worker: %w", err)
	}
	pid := cmd.Process.Pid

	// Reap the worker in the background so it never zombies; its exit is
	// observed through the process table and log, not through this wait.
	go cmd.Wait()

	if err := l.Store.Transition(task.ID, store.StatusDispatched,
		fmt.Sprintf("worker started pid=%d run=%s", pid, runID)); err != nil {
		return err
	}
	if err := l.Store.SetWorker(task.ID, pid, logPath); err != nil {
		return err
	}

	l.Log.Printf("dispatched task=%s pid=%d log=%s", task.ID, pid, logPath)
	return nil
}
