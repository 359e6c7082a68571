package store

import (
	"errors"
	"testing"
)

func TestInsertStuckCheck(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	c := &StuckCheck{
		TaskID:           "1",
		MilestoneMinutes: 30,
		ElapsedMinutes:   34,
		Confidence:       0.85,
		IsStuck:          true,
		Reasoning:        "repeating the same failing test run",
		SuggestedActions: "cancel and requeue with a narrower branch",
	}
	if err := s.InsertStuckCheck(c); err != nil {
		t.Fatalf("InsertStuckCheck: %v", err)
	}
	if c.ID == 0 {
		t.Error("check id not populated")
	}

	got, err := s.StuckChecks("1")
	if err != nil {
		t.Fatalf("StuckChecks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 check, got %d", len(got))
	}
	if !got[0].IsStuck || got[0].Confidence != 0.85 {
		t.Errorf("check fields not persisted: %+v", got[0])
	}
}

func TestInsertStuckCheck_DuplicateMilestone(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	first := &StuckCheck{TaskID: "1", MilestoneMinutes: 30, IsStuck: true, Confidence: 0.9}
	if err := s.InsertStuckCheck(first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := &StuckCheck{TaskID: "1", MilestoneMinutes: 30, IsStuck: false, Confidence: 0.1}
	err := s.InsertStuckCheck(second)
	if !errors.Is(err, ErrDuplicateCheck) {
		t.Fatalf("expected ErrDuplicateCheck, got %v", err)
	}

	// The original row must survive untouched.
	checks, _ := s.StuckChecks("1")
	if len(checks) != 1 {
		t.Fatalf("expected 1 check, got %d", len(checks))
	}
	if !checks[0].IsStuck {
		t.Error("duplicate insert overwrote original check")
	}
}

func TestInsertStuckCheck_DistinctMilestones(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	for _, m := range []int{30, 60, 120} {
		c := &StuckCheck{TaskID: "1", MilestoneMinutes: m, ElapsedMinutes: m}
		if err := s.InsertStuckCheck(c); err != nil {
			t.Fatalf("insert milestone %d: %v", m, err)
		}
	}

	checks, _ := s.StuckChecks("1")
	if len(checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(checks))
	}
}

func TestHasStuckCheck(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)
	s.InsertStuckCheck(&StuckCheck{TaskID: "1", MilestoneMinutes: 60})

	ok, err := s.HasStuckCheck("1", 60)
	if err != nil {
		t.Fatalf("HasStuckCheck: %v", err)
	}
	if !ok {
		t.Error("expected check at milestone 60")
	}
	ok, _ = s.HasStuckCheck("1", 30)
	if ok {
		t.Error("unexpected check at milestone 30")
	}
}

func TestHasOutstandingAdvisory(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)

	c := &StuckCheck{TaskID: "1", MilestoneMinutes: 30, IsStuck: true, Confidence: 0.9}
	s.InsertStuckCheck(c)

	ok, _ := s.HasOutstandingAdvisory("1")
	if ok {
		t.Error("advisory reported before notification")
	}

	if err := s.MarkStuckNotified(c.ID); err != nil {
		t.Fatalf("MarkStuckNotified: %v", err)
	}
	ok, _ = s.HasOutstandingAdvisory("1")
	if !ok {
		t.Error("advisory not reported after notification")
	}
}

func TestAllStuckChecks(t *testing.T) {
	s := testStore(t)
	s.CreateTask("1", "org/repo", "main", "fast", 3)
	s.CreateTask("2", "org/repo", "main", "fast", 3)
	s.InsertStuckCheck(&StuckCheck{TaskID: "1", MilestoneMinutes: 30})
	s.InsertStuckCheck(&StuckCheck{TaskID: "2", MilestoneMinutes: 30})

	all, err := s.AllStuckChecks()
	if err != nil {
		t.Fatalf("AllStuckChecks: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(all))
	}
}
