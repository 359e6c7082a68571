package store

import (
	"testing"
	"time"
)

func TestBreakerRow_EmptyIsZeroValue(t *testing.T) {
	s := testStore(t)

	b, err := s.BreakerRow()
	if err != nil {
		t.Fatalf("BreakerRow: %v", err)
	}
	if b.Tripped || b.ConsecutiveFailures != 0 {
		t.Errorf("expected zero-value breaker, got %+v", b)
	}
}

func TestSaveBreakerRow_Upsert(t *testing.T) {
	s := testStore(t)

	first := &BreakerState{
		ConsecutiveFailures: 2,
		LastFailureTask:     "7",
		LastFailureReason:   "tests failing",
	}
	if err := s.SaveBreakerRow(first); err != nil {
		t.Fatalf("SaveBreakerRow: %v", err)
	}

	second := &BreakerState{
		ConsecutiveFailures: 3,
		Tripped:             true,
		TrippedAt:           time.Now().UTC().Format(time.RFC3339),
		LastFailureTask:     "8",
		LastFailureReason:   "worker crashed",
	}
	if err := s.SaveBreakerRow(second); err != nil {
		t.Fatalf("SaveBreakerRow upsert: %v", err)
	}

	got, err := s.BreakerRow()
	if err != nil {
		t.Fatalf("BreakerRow: %v", err)
	}
	if !got.Tripped || got.ConsecutiveFailures != 3 || got.LastFailureTask != "8" {
		t.Errorf("upsert did not replace row: %+v", got)
	}
}

func TestTrippedAtTime(t *testing.T) {
	stamp := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	b := &BreakerState{TrippedAt: stamp.Format(time.RFC3339)}

	got, err := b.TrippedAtTime()
	if err != nil {
		t.Fatalf("TrippedAtTime: %v", err)
	}
	if !got.Equal(stamp) {
		t.Errorf("expected %v, got %v", stamp, got)
	}
}

func TestTrippedAtTime_Corrupt(t *testing.T) {
	for _, raw := range []string{"", "not-a-time", "2026-13-99"} {
		b := &BreakerState{TrippedAt: raw}
		if _, err := b.TrippedAtTime(); err == nil {
			t.Errorf("expected parse error for %q", raw)
		}
	}
}
