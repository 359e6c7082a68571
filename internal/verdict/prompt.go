package verdict

import (
	"fmt"
	"strings"

	"github.com/okral/overseer/internal/evidence"
	"github.com/okral/overseer/internal/store"
)

// assessmentPrompt renders the evidence bundle and the fixed rule set
// for the judgment model. The model must answer with a single line in
// the verdict grammar; anything else is discarded by the strict parser.
func assessmentPrompt(task *store.Task, b *evidence.Bundle) string {
	var sb strings.Builder

	sb.WriteString("You are assessing whether an autonomous coding worker finished its task.\n\n")
	fmt.Fprintf(&sb, "Task %s on %s (branch %s), attempt %d of %d.\n\n",
		task.ID, task.Repo, task.Branch, task.Retries+1, task.MaxRetries+1)

	sb.WriteString("Evidence:\n")
	fmt.Fprintf(&sb, "- worker process alive: %s\n", b.ProcessAlive)
	fmt.Fprintf(&sb, "- completion marker in log: %s\n", markerWord(b.Log.Marker))
	if b.Log.ExitCode != nil {
		fmt.Fprintf(&sb, "- last reported exit code: %d\n", *b.Log.ExitCode)
	} else {
		sb.WriteString("- last reported exit code: none\n")
	}
	fmt.Fprintf(&sb, "- checklist entry: %s\n", b.Checklist)
	fmt.Fprintf(&sb, "- pull request: %s", b.PRState)
	if b.PRRef != "" {
		fmt.Fprintf(&sb, " (#%s)", b.PRRef)
	}
	sb.WriteString("\n")

	if len(b.Log.Tail) > 0 {
		sb.WriteString("\nLog tail (most recent last):\n")
		for _, line := range b.Log.Tail {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	sb.WriteString(`
Rules:
- "complete" only if the work is demonstrably finished (merged PR, done checklist entry, or explicit success in the log).
- "retry" if the worker made progress but did not finish, and another attempt could plausibly succeed.
- "failed" only for unrecoverable situations (worker never ran, repo unusable, task impossible as specified).
- Never answer "alive": the worker process has already exited.

Respond with EXACTLY ONE line, nothing else, in one of these forms:
complete:<pr-number or none>
retry:<short reason>
failed:<short reason>
`)

	return sb.String()
}

func markerWord(m evidence.Marker) string {
	if m == evidence.MarkerNone {
		return "none"
	}
	return string(m)
}
