package stuck

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okral/overseer/internal/store"
)

// judgment is the structured answer required from the judgment model.
type judgment struct {
	IsStuck          bool     `json:"is_stuck"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	SuggestedActions []string `json:"suggested_actions"`
}

func (j judgment) actions() string {
	return strings.Join(j.SuggestedActions, "\n")
}

var errNoJSON = errors.New("no JSON object in response")

// parseJudgment extracts the judgment object from the model's output,
// tolerating prose or code fences around it. Out-of-range confidence is
// rejected rather than clamped.
func parseJudgment(output string) (*judgment, error) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}

	var j judgment
	if err := json.Unmarshal([]byte(output[start:end+1]), &j); err != nil {
		return nil, fmt.Errorf("parse judgment: %w", err)
	}
	if j.Confidence < 0 || j.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", j.Confidence)
	}
	return &j, nil
}

// detectionPrompt assembles the judgment context: task metadata, prior
// checks, the transition history, and the bounded log tail.
func detectionPrompt(task *store.Task, elapsed int, prior []store.StuckCheck, history []store.StateTransition, tail []string) string {
	var sb strings.Builder

	sb.WriteString("You are judging whether an autonomous coding worker is stuck or still making progress.\n\n")
	fmt.Fprintf(&sb, "Task %s on %s (branch %s), status %s, running for %d minutes, attempt %d of %d.\n",
		task.ID, task.Repo, task.Branch, task.Status, elapsed, task.Retries+1, task.MaxRetries+1)

	if len(history) > 0 {
		sb.WriteString("\nState history:\n")
		for _, tr := range history {
			fmt.Fprintf(&sb, "- %s: %s -> %s (%s)\n",
				tr.Timestamp.Format("15:04:05"), tr.From, tr.To, tr.Reason)
		}
	}

	if len(prior) > 0 {
		sb.WriteString("\nPrevious stuck checks:\n")
		for _, c := range prior {
			fmt.Fprintf(&sb, "- at %dm: stuck=%v confidence=%.2f: %s\n",
				c.MilestoneMinutes, c.IsStuck, c.Confidence, c.Reasoning)
		}
	}

	if len(tail) > 0 {
		sb.WriteString("\nLog tail (most recent last):\n")
		for _, line := range tail {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	sb.WriteString(`
A task is stuck when its recent output shows no forward movement: the
same errors repeating, no new files or commands, or long silence. Slow
but novel output is progress, not stuckness.

Respond with ONLY a JSON object, no prose:
{"is_stuck": <bool>, "confidence": <0.0-1.0>, "reasoning": "<one or two sentences>", "suggested_actions": ["<action>", ...]}
`)

	return sb.String()
}
