package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/okral/overseer/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the live task board",
	Long:  "Opens a read-only dashboard showing tasks grouped by lifecycle phase, breaker state, and per-task history.",
	RunE:  runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	p := tea.NewProgram(tui.New(s), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ui error: %w", err)
	}
	return nil
}
