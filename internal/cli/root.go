package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Supervisor for autonomous coding workers",
	Long:  "overseer dispatches bounded tasks to external coding workers,\ntracks them through a lifecycle state machine, and protects the fleet\nwith a circuit breaker and a stuck-task detector.",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(breakerCmd)
	rootCmd.AddCommand(stuckCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(triageCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(uiCmd)
}
