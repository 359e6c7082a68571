// Package verdict classifies a task's current attempt from its evidence
// bundle: deterministic fast paths first, an AI-judgment fallback for
// ambiguous cases, and a conservative heuristic when the judgment itself
// fails.
package verdict

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of verdict variants.
type Kind int

const (
	Alive Kind = iota
	Complete
	Retry
	Failed
)

func (k Kind) String() string {
	switch k {
	case Alive:
		return "alive"
	case Complete:
		return "complete"
	case Retry:
		return "retry"
	default:
		return "failed"
	}
}

// Verdict is the classification of one task attempt. Ref is set for
// Complete (a pull-request reference or the no-PR sentinel); Reason is
// set for Retry and Failed.
type Verdict struct {
	Kind   Kind
	Ref    string
	Reason string
}

// String renders the verdict in the wire grammar: "alive",
// "complete:<ref>", "retry:<reason>", "failed:<reason>".
func (v Verdict) String() string {
	switch v.Kind {
	case Alive:
		return "alive"
	case Complete:
		return "complete:" + v.Ref
	case Retry:
		return "retry:" + v.Reason
	default:
		return "failed:" + v.Reason
	}
}

// ErrUnparseable is returned when a judge response does not match the
// verdict grammar. Callers treat it the same as judgment-unavailable.
var ErrUnparseable = errors.New("response does not match verdict grammar")

// Parse reads a judge response, requiring a single line matching the
// verdict grammar exactly. Surrounding blank lines and code fences are
// tolerated; anything else is rejected.
func Parse(output string) (Verdict, error) {
	line := ""
	for _, l := range strings.Split(output, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "```") {
			continue
		}
		if line != "" {
			return Verdict{}, fmt.Errorf("multiple content lines: %w", ErrUnparseable)
		}
		line = l
	}
	if line == "" {
		return Verdict{}, fmt.Errorf("empty response: %w", ErrUnparseable)
	}

	if line == "alive" {
		return Verdict{Kind: Alive}, nil
	}

	kind, rest, found := strings.Cut(line, ":")
	if !found {
		return Verdict{}, fmt.Errorf("%q: %w", line, ErrUnparseable)
	}
	rest = strings.TrimSpace(rest)

	switch kind {
	case "complete":
		if rest == "" {
			return Verdict{}, fmt.Errorf("complete without reference: %w", ErrUnparseable)
		}
		return Verdict{Kind: Complete, Ref: rest}, nil
	case "retry":
		if rest == "" {
			return Verdict{}, fmt.Errorf("retry without reason: %w", ErrUnparseable)
		}
		return Verdict{Kind: Retry, Reason: rest}, nil
	case "failed":
		if rest == "" {
			return Verdict{}, fmt.Errorf("failed without reason: %w", ErrUnparseable)
		}
		return Verdict{Kind: Failed, Reason: rest}, nil
	default:
		return Verdict{}, fmt.Errorf("%q: %w", line, ErrUnparseable)
	}
}
