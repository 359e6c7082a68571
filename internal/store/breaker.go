package store

import (
	"database/sql"
	"fmt"
	"time"
)

// BreakerRow loads the singleton circuit-breaker record. If no row exists
// yet (nothing has ever failed) a zero-value state is returned.
func (s *Store) BreakerRow() (*BreakerState, error) {
	row := s.db.QueryRow(
		`SELECT consecutive_failures, tripped, tripped_at, last_failure_task, last_failure_reason, last_reset_at, reset_reason
		 FROM breaker_state WHERE id = 1`,
	)

	var b BreakerState
	var tripped int
	var lastResetAt sql.NullTime
	err := row.Scan(&b.ConsecutiveFailures, &tripped, &b.TrippedAt,
		&b.LastFailureTask, &b.LastFailureReason, &lastResetAt, &b.ResetReason)
	if err == sql.ErrNoRows {
		return &BreakerState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read breaker state: %w", err)
	}
	b.Tripped = tripped != 0
	if lastResetAt.Valid {
		b.LastResetAt = lastResetAt.Time
	}
	return &b, nil
}

// SaveBreakerRow upserts the singleton circuit-breaker record. Callers
// serialize through the breaker's lock; the store itself does not.
func (s *Store) SaveBreakerRow(b *BreakerState) error {
	var lastResetAt any
	if !b.LastResetAt.IsZero() {
		lastResetAt = b.LastResetAt
	}
	_, err := s.db.Exec(
		`INSERT INTO breaker_state (id, consecutive_failures, tripped, tripped_at, last_failure_task, last_failure_reason, last_reset_at, reset_reason)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			consecutive_failures = excluded.consecutive_failures,
			tripped              = excluded.tripped,
			tripped_at           = excluded.tripped_at,
			last_failure_task    = excluded.last_failure_task,
			last_failure_reason  = excluded.last_failure_reason,
			last_reset_at        = excluded.last_reset_at,
			reset_reason         = excluded.reset_reason`,
		b.ConsecutiveFailures, boolToInt(b.Tripped), b.TrippedAt,
		b.LastFailureTask, b.LastFailureReason, lastResetAt, b.ResetReason,
	)
	if err != nil {
		return fmt.Errorf("save breaker state: %w", err)
	}
	return nil
}

// TrippedAtTime parses the raw tripped_at stamp. An unparseable value
// returns an error so the breaker can fail closed instead of silently
// auto-resetting on corrupt data.
func (b *BreakerState) TrippedAtTime() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, b.TrippedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse tripped_at %q: %w", b.TrippedAt, err)
	}
	return ts, nil
}
