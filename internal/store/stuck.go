package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateCheck is returned when a stuck check already exists for the
// (task, milestone) pair. The scheduler treats it as "already done".
var ErrDuplicateCheck = errors.New("stuck check already recorded for milestone")

// InsertStuckCheck persists one stuck-detection judgment. The UNIQUE
// constraint on (task_id, milestone_minutes) makes milestone checks
// idempotent even under overlapping pulse invocations: the second writer
// gets ErrDuplicateCheck and mutates nothing.
func (s *Store) InsertStuckCheck(c *StuckCheck) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO stuck_checks
		 (task_id, milestone_minutes, elapsed_minutes, confidence, is_stuck, reasoning, suggested_actions, notified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.TaskID, c.MilestoneMinutes, c.ElapsedMinutes, c.Confidence,
		boolToInt(c.IsStuck), c.Reasoning, c.SuggestedActions, boolToInt(c.Notified), now,
	)
	if err != nil {
		return fmt.Errorf("insert stuck check: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task %s milestone %d: %w", c.TaskID, c.MilestoneMinutes, ErrDuplicateCheck)
	}
	id, _ := res.LastInsertId()
	c.ID = id
	c.CreatedAt = now
	return nil
}

// HasStuckCheck reports whether the (task, milestone) pair was already
// evaluated.
func (s *Store) HasStuckCheck(taskID string, milestone int) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM stuck_checks WHERE task_id = ? AND milestone_minutes = ?`,
		taskID, milestone,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup stuck check: %w", err)
	}
	return true, nil
}

// StuckChecks returns all checks for a task, oldest first.
func (s *Store) StuckChecks(taskID string) ([]StuckCheck, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, milestone_minutes, elapsed_minutes, confidence, is_stuck, reasoning, suggested_actions, notified, created_at
		 FROM stuck_checks WHERE task_id = ? ORDER BY milestone_minutes`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stuck checks: %w", err)
	}
	defer rows.Close()
	return scanStuckChecks(rows)
}

// AllStuckChecks returns every recorded check, for reporting tools.
func (s *Store) AllStuckChecks() ([]StuckCheck, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, milestone_minutes, elapsed_minutes, confidence, is_stuck, reasoning, suggested_actions, notified, created_at
		 FROM stuck_checks ORDER BY task_id, milestone_minutes`,
	)
	if err != nil {
		return nil, fmt.Errorf("query stuck checks: %w", err)
	}
	defer rows.Close()
	return scanStuckChecks(rows)
}

// MarkStuckNotified flags that an advisory notification was raised for
// this check.
func (s *Store) MarkStuckNotified(checkID int64) error {
	_, err := s.db.Exec(`UPDATE stuck_checks SET notified = 1 WHERE id = ?`, checkID)
	if err != nil {
		return fmt.Errorf("mark stuck notified: %w", err)
	}
	return nil
}

// HasOutstandingAdvisory reports whether any notified stuck check exists
// for the task (used to resolve advisories when the task succeeds).
func (s *Store) HasOutstandingAdvisory(taskID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM stuck_checks WHERE task_id = ? AND notified = 1 LIMIT 1`, taskID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup advisory: %w", err)
	}
	return true, nil
}

func scanStuckChecks(rows *sql.Rows) ([]StuckCheck, error) {
	var checks []StuckCheck
	for rows.Next() {
		var c StuckCheck
		var stuck, notified int
		if err := rows.Scan(&c.ID, &c.TaskID, &c.MilestoneMinutes, &c.ElapsedMinutes,
			&c.Confidence, &stuck, &c.Reasoning, &c.SuggestedActions, &notified, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stuck check: %w", err)
		}
		c.IsStuck = stuck != 0
		c.Notified = notified != 0
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
