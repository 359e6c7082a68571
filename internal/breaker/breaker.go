// Package breaker is the process-wide circuit breaker: a run of
// consecutive task failures halts new dispatch until a cooldown elapses
// or a reset clears it. Its single state record outlives individual
// tasks and survives supervisor restarts.
package breaker

import (
	"context"
	"time"

	"github.com/okral/overseer/internal/logging"
	"github.com/okral/overseer/internal/metrics"
	"github.com/okral/overseer/internal/store"
)

// ResetAutoCooldown is the reset reason recorded when Check clears a
// trip whose cooldown has fully elapsed.
const ResetAutoCooldown = "auto_cooldown"

// lockWait bounds how long a mutating operation waits for the lock
// before abandoning the cycle.
const lockWait = 5 * time.Second

// Notifier raises and clears the external breaker notification.
// Notification failures are logged, never propagated: the breaker's own
// state is the source of truth.
type Notifier interface {
	BreakerTripped(ctx context.Context, st *store.BreakerState) error
	BreakerCleared(ctx context.Context, reason string) error
}

// Breaker guards dispatch with trip/cooldown/reset semantics. All
// mutations serialize through the file lock; Check reads without it (a
// stale read costs at most one extra pulse of false "allow").
type Breaker struct {
	Store     *store.Store
	Lock      *FileLock
	Threshold int
	Cooldown  time.Duration
	Notify    Notifier
	Log       *logging.Logger

	now func() time.Time // test hook
}

// New wires a breaker with the configured threshold and cooldown.
func New(s *store.Store, lockPath string, threshold int, cooldown time.Duration, n Notifier, log *logging.Logger) *Breaker {
	return &Breaker{
		Store:     s,
		Lock:      NewFileLock(lockPath),
		Threshold: threshold,
		Cooldown:  cooldown,
		Notify:    n,
		Log:       log,
		now:       time.Now,
	}
}

// Decision is the answer to "may the dispatcher start new work?".
type Decision struct {
	Allowed   bool
	Remaining time.Duration // cooldown left when denied
	Failures  int
}

// RecordFailure increments the consecutive-failure counter and trips the
// breaker when the threshold is reached. Idempotent under concurrent
// callers: the lock serializes the read-modify-write.
func (b *Breaker) RecordFailure(ctx context.Context, taskID, reason string) error {
	if err := b.Lock.Acquire(lockWait); err != nil {
		return err
	}
	defer b.Lock.Release()

	st, err := b.Store.BreakerRow()
	if err != nil {
		return err
	}

	st.ConsecutiveFailures++
	st.LastFailureTask = taskID
	st.LastFailureReason = reason

	justTripped := false
	if !st.Tripped && st.ConsecutiveFailures >= b.Threshold {
		st.Tripped = true
		st.TrippedAt = b.now().UTC().Format(time.RFC3339)
		justTripped = true
	}

	if err := b.Store.SaveBreakerRow(st); err != nil {
		return err
	}

	b.Log.Printf("breaker failure %d/%d task=%s reason=%s", st.ConsecutiveFailures, b.Threshold, taskID, reason)
	if justTripped {
		b.Log.Printf("breaker TRIPPED after %d consecutive failures", st.ConsecutiveFailures)
		metrics.BreakerTrips.Inc()
		b.raise(ctx, st)
	}
	return nil
}

// RecordSuccess zeroes the counter and clears any trip. A breaker that
// is already clear is left untouched, avoiding redundant writes.
func (b *Breaker) RecordSuccess(ctx context.Context) error {
	if err := b.Lock.Acquire(lockWait); err != nil {
		return err
	}
	defer b.Lock.Release()

	st, err := b.Store.BreakerRow()
	if err != nil {
		return err
	}
	if st.ConsecutiveFailures == 0 && !st.Tripped {
		return nil
	}

	wasTripped := st.Tripped
	b.clear(st, "task succeeded")
	if err := b.Store.SaveBreakerRow(st); err != nil {
		return err
	}

	b.Log.Printf("breaker cleared by success")
	if wasTripped {
		b.lower(ctx, "task succeeded")
	}
	return nil
}

// Check reports whether dispatch is allowed. Reads without the lock. A
// trip whose cooldown has elapsed is auto-reset; a trip whose timestamp
// cannot be parsed fails closed.
func (b *Breaker) Check(ctx context.Context) Decision {
	st, err := b.Store.BreakerRow()
	if err != nil {
		b.Log.Warnf("breaker state unreadable, denying dispatch: %v", err)
		return Decision{Allowed: false}
	}
	if !st.Tripped {
		return Decision{Allowed: true, Failures: st.ConsecutiveFailures}
	}

	trippedAt, err := st.TrippedAtTime()
	if err != nil {
		// Corrupt timestamp: deny rather than silently auto-reset.
		b.Log.Warnf("breaker tripped_at corrupt, failing closed: %v", err)
		return Decision{Allowed: false, Failures: st.ConsecutiveFailures}
	}

	elapsed := b.now().UTC().Sub(trippedAt)
	if elapsed >= b.Cooldown {
		if err := b.Reset(ctx, ResetAutoCooldown); err != nil {
			// Couldn't reset this cycle (lock contention); stay closed.
			b.Log.Warnf("breaker auto-reset abandoned: %v", err)
			return Decision{Allowed: false, Failures: st.ConsecutiveFailures}
		}
		return Decision{Allowed: true}
	}

	return Decision{
		Allowed:   false,
		Remaining: b.Cooldown - elapsed,
		Failures:  st.ConsecutiveFailures,
	}
}

// Reset clears the trip and the counter, stamps the reset metadata, and
// closes any external notification. Used for both manual resets and the
// cooldown auto-reset.
func (b *Breaker) Reset(ctx context.Context, reason string) error {
	if err := b.Lock.Acquire(lockWait); err != nil {
		return err
	}
	defer b.Lock.Release()

	st, err := b.Store.BreakerRow()
	if err != nil {
		return err
	}
	b.clear(st, reason)
	if err := b.Store.SaveBreakerRow(st); err != nil {
		return err
	}

	b.Log.Printf("breaker reset: %s", reason)
	b.lower(ctx, reason)
	return nil
}

// State returns the current breaker record for status reporting.
func (b *Breaker) State() (*store.BreakerState, error) {
	return b.Store.BreakerRow()
}

func (b *Breaker) clear(st *store.BreakerState, reason string) {
	st.ConsecutiveFailures = 0
	st.Tripped = false
	st.TrippedAt = ""
	st.LastResetAt = b.now().UTC()
	st.ResetReason = reason
}

func (b *Breaker) raise(ctx context.Context, st *store.BreakerState) {
	if b.Notify == nil {
		return
	}
	if err := b.Notify.BreakerTripped(ctx, st); err != nil {
		b.Log.Warnf("breaker notification failed: %v", err)
	}
}

func (b *Breaker) lower(ctx context.Context, reason string) {
	if b.Notify == nil {
		return
	}
	if err := b.Notify.BreakerCleared(ctx, reason); err != nil {
		b.Log.Warnf("breaker notification close failed: %v", err)
	}
}
