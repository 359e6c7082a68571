package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides access to the overseer database. It is the sole owner of
// persisted task lifecycle state; components never cache tasks across
// pulse cycles.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		status        TEXT NOT NULL DEFAULT 'queued',
		repo          TEXT NOT NULL,
		branch        TEXT NOT NULL,
		model_tier    TEXT NOT NULL DEFAULT 'fast',
		log_path      TEXT DEFAULT '',
		pid           INTEGER DEFAULT 0,
		retries       INTEGER NOT NULL DEFAULT 0,
		max_retries   INTEGER NOT NULL DEFAULT 3,
		pr_reference  TEXT DEFAULT '',
		error         TEXT DEFAULT '',
		started_at    DATETIME,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id     TEXT NOT NULL REFERENCES tasks(id),
		from_state  TEXT NOT NULL,
		to_state    TEXT NOT NULL,
		reason      TEXT DEFAULT '',
		timestamp   DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stuck_checks (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id            TEXT NOT NULL REFERENCES tasks(id),
		milestone_minutes  INTEGER NOT NULL,
		elapsed_minutes    INTEGER NOT NULL,
		confidence         REAL NOT NULL DEFAULT 0,
		is_stuck           INTEGER NOT NULL DEFAULT 0,
		reasoning          TEXT DEFAULT '',
		suggested_actions  TEXT DEFAULT '',
		notified           INTEGER NOT NULL DEFAULT 0,
		created_at         DATETIME NOT NULL,
		UNIQUE(task_id, milestone_minutes)
	);

	CREATE TABLE IF NOT EXISTS breaker_state (
		id                    INTEGER PRIMARY KEY CHECK (id = 1),
		consecutive_failures  INTEGER NOT NULL DEFAULT 0,
		tripped               INTEGER NOT NULL DEFAULT 0,
		tripped_at            TEXT DEFAULT '',
		last_failure_task     TEXT DEFAULT '',
		last_failure_reason   TEXT DEFAULT '',
		last_reset_at         DATETIME,
		reset_reason          TEXT DEFAULT ''
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// CreateTask inserts a new queued task and returns it.
func (s *Store) CreateTask(id, repo, branch, tier string, maxRetries int) (*Task, error) {
	now := time.Now().UTC()
	if tier == "" {
		tier = "fast"
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	_, err := s.db.Exec(
		`INSERT INTO tasks (id, status, repo, branch, model_tier, max_retries, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(StatusQueued), repo, branch, tier, maxRetries, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return &Task{
		ID:         id,
		Status:     StatusQueued,
		Repo:       repo,
		Branch:     branch,
		ModelTier:  tier,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// taskColumns is the standard column list for task queries.
const taskColumns = `id, status, repo, branch, model_tier, log_path, pid, retries, max_retries, pr_reference, error, started_at, created_at, updated_at`

// GetTask returns a single task by ID.
func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return t, nil
}

// ListTasks returns all tasks, optionally filtered by status.
func (s *Store) ListTasks(status string) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`
	return s.queryTasks(query, args...)
}

// ListActive returns all tasks not yet in a terminal state.
func (s *Store) ListActive() ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status NOT IN (?, ?, ?) ORDER BY id`
	return s.queryTasks(query,
		string(StatusDeployed), string(StatusFailed), string(StatusCancelled))
}

func (s *Store) queryTasks(query string, args ...any) ([]Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Transition moves a task to a new status and appends the matching
// state_log row in the same transaction. Readers never observe a status
// without its justifying transition record. Illegal transitions are
// rejected with ErrIllegalTransition and mutate nothing.
func (s *Store) Transition(id string, to TaskStatus, reason string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	var from TaskStatus
	var startedAt sql.NullTime
	err = tx.QueryRow(`SELECT status, started_at FROM tasks WHERE id = ?`, id).Scan(&from, &startedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("read task status: %w", err)
	}

	if err := checkTransition(id, from, to); err != nil {
		return err
	}

	now := time.Now().UTC()
	if from == StatusQueued && !startedAt.Valid {
		// started_at is stamped exactly once, when the task first leaves the queue.
		_, err = tx.Exec(`UPDATE tasks SET status = ?, started_at = ?, updated_at = ? WHERE id = ?`,
			string(to), now, now, id)
	} else {
		_, err = tx.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
			string(to), now, id)
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO state_log (task_id, from_state, to_state, reason, timestamp) VALUES (?, ?, ?, ?, ?)`,
		id, string(from), string(to), reason, now,
	)
	if err != nil {
		return fmt.Errorf("append state log: %w", err)
	}

	return tx.Commit()
}

// Transitions returns the full audit trail for a task, oldest first.
func (s *Store) Transitions(taskID string) ([]StateTransition, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, from_state, to_state, reason, timestamp FROM state_log WHERE task_id = ? ORDER BY id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query state log: %w", err)
	}
	defer rows.Close()

	var log []StateTransition
	for rows.Next() {
		var tr StateTransition
		if err := rows.Scan(&tr.ID, &tr.TaskID, &tr.From, &tr.To, &tr.Reason, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		log = append(log, tr)
	}
	return log, rows.Err()
}

// IncrementRetries bumps the retry counter. Called only when a retry
// verdict is recorded for the task.
func (s *Store) IncrementRetries(id string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE tasks SET retries = retries + 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("increment retries: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	return nil
}

// SetWorker records the spawned worker's pid and log path on the task.
func (s *Store) SetWorker(id string, pid int, logPath string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`UPDATE tasks SET pid = ?, log_path = ?, updated_at = ? WHERE id = ?`,
		pid, logPath, now, id)
	if err != nil {
		return fmt.Errorf("set worker: %w", err)
	}
	return nil
}

// SetPRReference records the pull request produced by the task, or the
// NoPR sentinel when it completed without one.
func (s *Store) SetPRReference(id, ref string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`UPDATE tasks SET pr_reference = ?, updated_at = ? WHERE id = ?`, ref, now, id)
	if err != nil {
		return fmt.Errorf("set pr reference: %w", err)
	}
	return nil
}

// SetError records the task's failure reason string.
func (s *Store) SetError(id, msg string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`UPDATE tasks SET error = ?, updated_at = ? WHERE id = ?`, msg, now, id)
	if err != nil {
		return fmt.Errorf("set error: %w", err)
	}
	return nil
}

// CountByStatus returns the number of tasks in each lifecycle state.
func (s *Store) CountByStatus() (map[TaskStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var status TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// scanTask scans one task row; the scan argument abstracts over
// *sql.Row and *sql.Rows.
func scanTask(scan func(...any) error) (*Task, error) {
	var t Task
	var startedAt sql.NullTime
	err := scan(
		&t.ID, &t.Status, &t.Repo, &t.Branch, &t.ModelTier, &t.LogPath, &t.PID,
		&t.Retries, &t.MaxRetries, &t.PRReference, &t.Error,
		&startedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t.StartedAt = startedAt.Time
	}
	return &t, nil
}
