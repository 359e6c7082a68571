package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okral/overseer/internal/breaker"
	"github.com/okral/overseer/internal/platform"
)

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Inspect or reset the circuit breaker",
	RunE:  runBreakerShow,
}

var breakerResetCmd = &cobra.Command{
	Use:   "reset [reason]",
	Short: "Manually reset the circuit breaker",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBreakerReset,
}

func init() {
	breakerCmd.AddCommand(breakerResetCmd)
}

func runBreakerShow(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.BreakerRow()
	if err != nil {
		return err
	}
	if st.Tripped {
		fmt.Printf("%sTRIPPED%s at %s (%d consecutive failures)\n",
			colorRed, colorReset, st.TrippedAt, st.ConsecutiveFailures)
		fmt.Printf("last failure: task %s: %s\n", st.LastFailureTask, st.LastFailureReason)
	} else {
		fmt.Printf("%sclear%s (%d consecutive failures)\n", colorGreen, colorReset, st.ConsecutiveFailures)
	}
	return nil
}

func runBreakerReset(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, err := mustConfig()
	if err != nil {
		return err
	}

	logger := openLogger()
	defer logger.Close()

	reason := "manual reset"
	if len(args) == 1 {
		reason = args[0]
	}

	brk := breaker.New(s, overseerPath("breaker.lock"), cfg.Threshold(), cfg.Cooldown(),
		platform.New(cfg.Platform), logger)
	if err := brk.Reset(context.Background(), reason); err != nil {
		return err
	}
	fmt.Printf("%sbreaker reset%s (%s)\n", colorGreen, colorReset, reason)
	return nil
}
