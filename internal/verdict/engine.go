package verdict

import (
	"context"

	"github.com/okral/overseer/internal/evidence"
	"github.com/okral/overseer/internal/judge"
	"github.com/okral/overseer/internal/logging"
	"github.com/okral/overseer/internal/store"
)

// ReasonNoWorkerOutput is recorded when dispatch itself failed and the
// worker never produced a log.
const ReasonNoWorkerOutput = "no_worker_output"

// Engine turns evidence bundles into verdicts. It surfaces only
// "task not found"; judgment failures downgrade to the deterministic
// fallback and are logged as warnings, never returned.
type Engine struct {
	Store    *store.Store
	Gatherer *evidence.Gatherer
	Judge    judge.Judge
	Log      *logging.Logger
}

// Assess classifies the task's current attempt. The rule order is
// load-bearing: each rule only applies when every earlier one missed.
func (e *Engine) Assess(ctx context.Context, taskID string) (Verdict, error) {
	task, err := e.Store.GetTask(taskID)
	if err != nil {
		return Verdict{}, err
	}

	b := e.Gatherer.Gather(ctx, task)
	v := e.classify(ctx, task, b)
	e.Log.Printf("verdict task=%s %s [%s]", taskID, v, b.Summary())
	return v, nil
}

func (e *Engine) classify(ctx context.Context, task *store.Task, b *evidence.Bundle) Verdict {
	// 1. A live worker ends the cycle; nothing to judge yet.
	if b.ProcessAlive == evidence.Yes {
		return Verdict{Kind: Alive}
	}

	// 2. Unambiguous completion marker plus a pull-request reference.
	if unambiguousMarker(b.Log.Marker) && b.PRRef != "" {
		return Verdict{Kind: Complete, Ref: b.PRRef}
	}

	// 3. Verification finished, or the platform already shows a merge.
	if b.Log.Marker == evidence.MarkerVerificationComplete || b.PRState == evidence.PRMerged {
		return Verdict{Kind: Complete, Ref: refOrSentinel(b.PRRef)}
	}

	// 4. No log was ever produced: dispatch itself failed.
	if !b.LogFound {
		return Verdict{Kind: Failed, Reason: ReasonNoWorkerOutput}
	}

	// 5. Ambiguous: ask the judgment model, fall back deterministically.
	return e.judgeOrFallback(ctx, task, b)
}

func unambiguousMarker(m evidence.Marker) bool {
	return m == evidence.MarkerLoopComplete || m == evidence.MarkerVerificationComplete
}

func refOrSentinel(ref string) string {
	if ref == "" {
		return store.NoPR
	}
	return ref
}

// judgeOrFallback invokes the AI-judgment model with the evidence bundle
// and strict response grammar. Unavailable, slow, or garbled judges all
// take the same path: the conservative deterministic fallback.
func (e *Engine) judgeOrFallback(ctx context.Context, task *store.Task, b *evidence.Bundle) Verdict {
	if e.Judge != nil {
		resp, err := e.Judge.Evaluate(ctx, judge.Request{
			TaskID: task.ID,
			Prompt: assessmentPrompt(task, b),
		})
		if err != nil {
			e.Log.Warnf("judge unavailable for task %s: %v", task.ID, err)
		} else {
			v, perr := Parse(resp.Output)
			if perr != nil {
				e.Log.Warnf("judge response for task %s rejected: %v", task.ID, perr)
			} else if v.Kind == Complete && v.Ref == store.NoPR && b.PRRef != "" {
				// Trust the gathered reference over the model's sentinel.
				return Verdict{Kind: Complete, Ref: b.PRRef}
			} else {
				return v
			}
		}
	}
	return fallback(b)
}

// fallback is the pure deterministic downgrade used when no judgment is
// available: a known pull request means done, produced output means the
// attempt is worth retrying, and silence means the worker never ran.
func fallback(b *evidence.Bundle) Verdict {
	if b.PRRef != "" {
		return Verdict{Kind: Complete, Ref: b.PRRef}
	}
	if b.Log.HasOutput {
		return Verdict{Kind: Retry, Reason: "judge unavailable; worker produced output but no completion marker"}
	}
	return Verdict{Kind: Failed, Reason: ReasonNoWorkerOutput}
}
