package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/okral/overseer/internal/store"
)

type detailLoadedMsg struct {
	task        *store.Task
	transitions []store.StateTransition
	checks      []store.StuckCheck
	err         error
}

func (m Model) loadDetail(id string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		task, err := s.GetTask(id)
		if err != nil {
			return detailLoadedMsg{err: err}
		}
		transitions, err := s.Transitions(id)
		if err != nil {
			return detailLoadedMsg{err: err}
		}
		checks, err := s.StuckChecks(id)
		if err != nil {
			return detailLoadedMsg{err: err}
		}
		return detailLoadedMsg{task: task, transitions: transitions, checks: checks}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.history.Width = msg.Width - 4
		m.history.Height = msg.Height - 8
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.loadBoard(), tick())

	case boardLoadedMsg:
		if msg.err != nil {
			return m, nil
		}
		m.columns = msg.columns
		m.breaker = msg.breaker
		m.clampCursor()
		return m, nil

	case detailLoadedMsg:
		if msg.err != nil {
			m.screen = screenBoard
			return m, nil
		}
		m.detail = msg.task
		m.history.SetContent(renderHistory(msg.task, msg.transitions, msg.checks))
		m.history.GotoTop()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.screen == screenDetail {
		switch msg.String() {
		case "q", "esc":
			m.screen = screenBoard
			m.detail = nil
			return m, nil
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "left", "h":
		m.cursorCol--
		m.clampCursor()
	case "right", "l":
		m.cursorCol++
		m.clampCursor()
	case "up", "k":
		m.cursorRow--
		m.clampCursor()
	case "down", "j":
		m.cursorRow++
		m.clampCursor()
	case "r":
		return m, m.loadBoard()
	case "enter":
		if t := m.selected(); t != nil {
			m.screen = screenDetail
			return m, m.loadDetail(t.ID)
		}
	}
	return m, nil
}

// renderHistory builds the detail panel text.
func renderHistory(t *store.Task, transitions []store.StateTransition, checks []store.StuckCheck) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repo:     %s\n", t.Repo)
	fmt.Fprintf(&b, "Branch:   %s\n", t.Branch)
	fmt.Fprintf(&b, "Tier:     %s\n", t.ModelTier)
	fmt.Fprintf(&b, "Retries:  %d/%d\n", t.Retries, t.MaxRetries)
	if t.PRReference != "" && t.PRReference != store.NoPR {
		fmt.Fprintf(&b, "PR:       %s\n", t.PRReference)
	}
	if t.Error != "" {
		fmt.Fprintf(&b, "Error:    %s\n", t.Error)
	}

	b.WriteString("\nTransitions\n")
	if len(transitions) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, tr := range transitions {
		fmt.Fprintf(&b, "  %s  %s -> %s", tr.Timestamp.Format("01-02 15:04:05"), tr.From, tr.To)
		if tr.Reason != "" {
			fmt.Fprintf(&b, "  (%s)", tr.Reason)
		}
		b.WriteString("\n")
	}

	if len(checks) > 0 {
		b.WriteString("\nStuck checks\n")
		for _, c := range checks {
			verdict := "ok"
			if c.IsStuck {
				verdict = "STUCK"
			}
			fmt.Fprintf(&b, "  %dm  %s  conf=%.2f  %s\n", c.MilestoneMinutes, verdict, c.Confidence, c.Reasoning)
		}
	}
	return b.String()
}
