package stuck

import "testing"

func TestParseJudgment(t *testing.T) {
	out := `{"is_stuck": true, "confidence": 0.85, "reasoning": "looping on the same error", "suggested_actions": ["cancel", "requeue"]}`
	j, err := parseJudgment(out)
	if err != nil {
		t.Fatalf("parseJudgment: %v", err)
	}
	if !j.IsStuck || j.Confidence != 0.85 {
		t.Errorf("fields not parsed: %+v", j)
	}
	if j.actions() != "cancel\nrequeue" {
		t.Errorf("actions join wrong: %q", j.actions())
	}
}

func TestParseJudgment_SurroundingProse(t *testing.T) {
	out := "Here is my assessment:\n```json\n{\"is_stuck\": false, \"confidence\": 0.2, \"reasoning\": \"progress visible\"}\n```\nHope that helps."
	j, err := parseJudgment(out)
	if err != nil {
		t.Fatalf("parseJudgment: %v", err)
	}
	if j.IsStuck || j.Confidence != 0.2 {
		t.Errorf("fields not parsed: %+v", j)
	}
}

func TestParseJudgment_Rejects(t *testing.T) {
	inputs := []string{
		"",
		"no json here",
		"}{",
		`{"is_stuck": "maybe"}`,
		`{"is_stuck": true, "confidence": 1.5}`,
		`{"is_stuck": true, "confidence": -0.1}`,
	}
	for _, input := range inputs {
		if _, err := parseJudgment(input); err == nil {
			t.Errorf("parseJudgment(%q): expected error", input)
		}
	}
}
