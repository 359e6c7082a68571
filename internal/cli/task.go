package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okral/overseer/internal/store"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Queue a new task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a task (allowed from any non-terminal state)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

var (
	taskRepo       string
	taskBranch     string
	taskTier       string
	taskMaxRetries int
	taskListStatus string
)

func init() {
	taskAddCmd.Flags().StringVar(&taskRepo, "repo", "", "repository the worker operates on")
	taskAddCmd.Flags().StringVar(&taskBranch, "branch", "", "branch the worker pushes to")
	taskAddCmd.Flags().StringVar(&taskTier, "tier", "fast", "worker model tier")
	taskAddCmd.Flags().IntVar(&taskMaxRetries, "max-retries", 3, "retry budget")
	taskAddCmd.MarkFlagRequired("repo")
	taskAddCmd.MarkFlagRequired("branch")

	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "filter by lifecycle state")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskCancelCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	task, err := s.CreateTask(args[0], taskRepo, taskBranch, taskTier, taskMaxRetries)
	if err != nil {
		return err
	}
	fmt.Printf("Queued task %s%s%s (%s, branch %s, tier %s)\n",
		colorBold, task.ID, colorReset, task.Repo, task.Branch, task.ModelTier)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	tasks, err := s.ListTasks(taskListStatus)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Printf("%sNo tasks.%s\n", colorDim, colorReset)
		return nil
	}

	for _, t := range tasks {
		retries := ""
		if t.Retries > 0 {
			retries = fmt.Sprintf(" retries=%d/%d", t.Retries, t.MaxRetries)
		}
		fmt.Printf("%s%-10s%s %s%-14s%s %s@%s%s\n",
			colorBold, t.ID, colorReset,
			statusColor(t.Status), t.Status, colorReset,
			t.Repo, t.Branch, retries)
	}
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.GetTask(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%sTask %s%s\n", colorBold, t.ID, colorReset)
	fmt.Printf("  status:      %s%s%s\n", statusColor(t.Status), t.Status, colorReset)
	fmt.Printf("  repo:        %s (branch %s)\n", t.Repo, t.Branch)
	fmt.Printf("  tier:        %s\n", t.ModelTier)
	fmt.Printf("  retries:     %d/%d\n", t.Retries, t.MaxRetries)
	if t.PID > 0 {
		fmt.Printf("  worker pid:  %d\n", t.PID)
	}
	if t.LogPath != "" {
		fmt.Printf("  log:         %s\n", t.LogPath)
	}
	if t.PRReference != "" {
		fmt.Printf("  pull req:    %s\n", t.PRReference)
	}
	if t.Error != "" {
		fmt.Printf("  error:       %s%s%s\n", colorRed, t.Error, colorReset)
	}
	if t.Started() {
		fmt.Printf("  started:     %s\n", t.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Transition(args[0], store.StatusCancelled, "administrative cancel"); err != nil {
		return err
	}
	fmt.Printf("Cancelled task %s\n", args[0])
	return nil
}
