package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okral/overseer/internal/store"
)

var triageCmd = &cobra.Command{
	Use:   "triage <task-id> <merge|fix>",
	Short: "Resolve reviewer feedback for a task in review triage",
	Long:  "Classifies reviewer feedback: 'merge' sends the pull request to merging,\n'fix' returns the task to complete so a follow-up can address the comments.",
	Args:  cobra.ExactArgs(2),
	RunE:  runTriage,
}

var deployCmd = &cobra.Command{
	Use:   "deploy <task-id>",
	Short: "Confirm deployment of a verified task",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploy,
}

func runTriage(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id := args[0]
	switch args[1] {
	case "merge":
		if err := s.Transition(id, store.StatusMerging, "triage: feedback resolved as mergeable"); err != nil {
			return err
		}
		fmt.Printf("Task %s moving to merge\n", id)
	case "fix":
		if err := s.Transition(id, store.StatusComplete, "triage: feedback needs a fix"); err != nil {
			return err
		}
		fmt.Printf("Task %s returned to complete for a follow-up fix\n", id)
	default:
		return fmt.Errorf("unknown triage decision %q (want merge or fix)", args[1])
	}
	return nil
}

func runDeploy(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Transition(args[0], store.StatusDeployed, "deployment confirmed"); err != nil {
		return err
	}
	fmt.Printf("%sTask %s deployed%s\n", colorGreen, args[0], colorReset)
	return nil
}
