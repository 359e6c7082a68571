// Package judge invokes the external AI-judgment model used by the
// verdict engine and the stuck detector. The model is treated as
// unreliable: callers must tolerate timeouts, empty output and garbage,
// and every call carries an explicit deadline.
package judge

import (
	"context"
	"fmt"

	"github.com/okral/overseer/internal/config"
)

// Request is one judgment call.
type Request struct {
	TaskID     string // Task under judgment, for tracing
	Prompt     string // Full prompt with evidence or history
	TimeoutSec int    // Max wall time; 0 uses the tier default
}

// Response is the raw model output.
type Response struct {
	Output   string  // Model's text output
	Duration float64 // Wall time in seconds
}

// Judge is the interface both tier adapters implement. A non-nil error
// means "judgment unavailable"; callers fall back deterministically and
// never escalate it.
type Judge interface {
	// Evaluate sends the prompt and returns the model's text response.
	Evaluate(ctx context.Context, req Request) (*Response, error)

	// Tier returns the configured tier name ("fast", "thorough", ...).
	Tier() string
}

// New creates the adapter for the given tier from config.
func New(cfg *config.Config, tier string) (Judge, error) {
	jc, ok := cfg.Judges[tier]
	if !ok {
		return nil, fmt.Errorf("no judge configured for tier %q", tier)
	}
	timeout := cfg.JudgeTimeout(tier)
	switch jc.Mode {
	case "cli":
		return NewCLIJudge(tier, jc, timeout), nil
	case "api":
		j, err := NewAPIJudge(tier, jc, timeout)
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unknown judge mode: %s", jc.Mode)
	}
}
