package platform

import (
	"context"
	"fmt"

	"github.com/okral/overseer/internal/store"
)

// Labels applied to notification issues so humans and reporting tools
// can filter them.
const (
	labelBreaker = "overseer-breaker"
	labelStuck   = "overseer-stuck"
)

const breakerIssueTitle = "Circuit breaker tripped: dispatch halted"

// BreakerTripped opens (or updates) the circuit-breaker issue. Safe to
// call again while already tripped: the existing issue gets a comment.
func (c *Client) BreakerTripped(ctx context.Context, st *store.BreakerState) error {
	body := fmt.Sprintf(
		"The supervisor halted new dispatch after %d consecutive failures.\n\nLast failure: task `%s`: %s\nTripped at: %s\n\nDispatch resumes automatically after the cooldown, or run `overseer breaker reset`.",
		st.ConsecutiveFailures, st.LastFailureTask, st.LastFailureReason, st.TrippedAt,
	)

	num, err := c.FindOpenIssue(ctx, breakerIssueTitle, labelBreaker)
	if err != nil {
		return err
	}
	if num != 0 {
		return c.CommentIssue(ctx, num, body)
	}
	_, err = c.CreateIssue(ctx, breakerIssueTitle, body, []string{labelBreaker})
	return err
}

// BreakerCleared closes the circuit-breaker issue with an annotation.
// A missing issue is not an error.
func (c *Client) BreakerCleared(ctx context.Context, reason string) error {
	num, err := c.FindOpenIssue(ctx, breakerIssueTitle, labelBreaker)
	if err != nil {
		return err
	}
	if num == 0 {
		return nil
	}
	if err := c.CommentIssue(ctx, num, "Circuit breaker cleared: "+reason); err != nil {
		return err
	}
	return c.CloseIssue(ctx, num)
}

func stuckIssueTitle(taskID string) string {
	return fmt.Sprintf("Task %s may be stuck", taskID)
}

// TaskStuck raises the advisory issue for a task the judgment model
// believes is stuck. Advisory only: task state is never touched here.
func (c *Client) TaskStuck(ctx context.Context, task *store.Task, check *store.StuckCheck) error {
	body := fmt.Sprintf(
		"Stuck check at the %d-minute milestone (%d minutes elapsed) flagged this task with confidence %.2f.\n\nReasoning: %s",
		check.MilestoneMinutes, check.ElapsedMinutes, check.Confidence, check.Reasoning,
	)
	if check.SuggestedActions != "" {
		body += "\n\nSuggested actions:\n" + check.SuggestedActions
	}

	title := stuckIssueTitle(task.ID)
	num, err := c.FindOpenIssue(ctx, title, labelStuck)
	if err != nil {
		return err
	}
	if num != 0 {
		return c.CommentIssue(ctx, num, body)
	}
	_, err = c.CreateIssue(ctx, title, body, []string{labelStuck})
	return err
}

// TaskRecovered resolves any outstanding stuck advisory for a task that
// eventually succeeded.
func (c *Client) TaskRecovered(ctx context.Context, taskID string) error {
	num, err := c.FindOpenIssue(ctx, stuckIssueTitle(taskID), labelStuck)
	if err != nil {
		return err
	}
	if num == 0 {
		return nil
	}
	comment := fmt.Sprintf("Task %s completed; closing the stuck advisory.", taskID)
	if err := c.CommentIssue(ctx, num, comment); err != nil {
		return err
	}
	return c.CloseIssue(ctx, num)
}
