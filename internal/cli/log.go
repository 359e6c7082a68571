package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <task-id>",
	Short: "Show a task's full state transition history",
	Args:  cobra.ExactArgs(1),
	RunE:  runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	// Surface not-found before printing an empty trail.
	if _, err := s.GetTask(args[0]); err != nil {
		return err
	}

	transitions, err := s.Transitions(args[0])
	if err != nil {
		return err
	}
	if len(transitions) == 0 {
		fmt.Printf("%sno transitions yet%s\n", colorDim, colorReset)
		return nil
	}

	for _, tr := range transitions {
		fmt.Printf("%s%s%s  %s%-13s%s -> %s%-13s%s %s\n",
			colorDim, tr.Timestamp.Local().Format("2006-01-02 15:04:05"), colorReset,
			statusColor(tr.From), tr.From, colorReset,
			statusColor(tr.To), tr.To, colorReset,
			tr.Reason)
	}
	return nil
}
