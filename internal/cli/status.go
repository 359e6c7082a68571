package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okral/overseer/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fleet status: task counts and circuit breaker",
	RunE:  runStatus,
}

// statusOrder fixes the display order of lifecycle states.
var statusOrder = []store.TaskStatus{
	store.StatusQueued, store.StatusDispatched, store.StatusRunning,
	store.StatusEvaluating, store.StatusRetrying, store.StatusBlocked,
	store.StatusComplete, store.StatusPRReview, store.StatusReviewTriage,
	store.StatusMerging, store.StatusVerified, store.StatusDeployed,
	store.StatusFailed, store.StatusCancelled,
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	counts, err := s.CountByStatus()
	if err != nil {
		return err
	}

	fmt.Printf("%sTasks%s\n", colorBold, colorReset)
	total := 0
	for _, st := range statusOrder {
		n := counts[st]
		total += n
		if n == 0 {
			continue
		}
		fmt.Printf("  %s%-14s%s %d\n", statusColor(st), st, colorReset, n)
	}
	if total == 0 {
		fmt.Printf("  %snone%s\n", colorDim, colorReset)
	}

	bst, err := s.BreakerRow()
	if err != nil {
		return err
	}

	fmt.Printf("\n%sCircuit breaker%s\n", colorBold, colorReset)
	if bst.Tripped {
		fmt.Printf("  %sTRIPPED%s at %s after %d consecutive failures\n",
			colorRed, colorReset, bst.TrippedAt, bst.ConsecutiveFailures)
		fmt.Printf("  last failure: task %s: %s\n", bst.LastFailureTask, bst.LastFailureReason)
	} else {
		fmt.Printf("  %sclear%s (%d consecutive failures)\n", colorGreen, colorReset, bst.ConsecutiveFailures)
		if !bst.LastResetAt.IsZero() {
			fmt.Printf("  last reset: %s (%s)\n",
				bst.LastResetAt.Local().Format(time.RFC822), bst.ResetReason)
		}
	}
	return nil
}
