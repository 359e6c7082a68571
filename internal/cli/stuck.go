package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okral/overseer/internal/store"
)

var stuckCmd = &cobra.Command{
	Use:   "stuck [task-id]",
	Short: "Show stuck-check history, for one task or the whole fleet",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStuck,
}

func runStuck(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var checks []store.StuckCheck
	if len(args) == 1 {
		if _, err := s.GetTask(args[0]); err != nil {
			return err
		}
		checks, err = s.StuckChecks(args[0])
	} else {
		checks, err = s.AllStuckChecks()
	}
	if err != nil {
		return err
	}

	if len(checks) == 0 {
		fmt.Printf("%sno stuck checks recorded%s\n", colorDim, colorReset)
		return nil
	}

	for _, c := range checks {
		verdict := colorGreen + "healthy" + colorReset
		if c.IsStuck {
			verdict = colorRed + "STUCK" + colorReset
		}
		notified := ""
		if c.Notified {
			notified = " (notified)"
		}
		fmt.Printf("%s%-10s%s %3dm milestone  %s  confidence=%.2f%s\n",
			colorBold, c.TaskID, colorReset, c.MilestoneMinutes, verdict, c.Confidence, notified)
		if c.Reasoning != "" {
			fmt.Printf("    %s%s%s\n", colorDim, c.Reasoning, colorReset)
		}
	}
	return nil
}
