package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/okral/overseer/internal/store"
)

var (
	clrSubtle    = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	clrHighlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	clrGreen     = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	clrYellow    = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#DAA520"}
	clrRed       = lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF5F5F"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(clrHighlight).
			Padding(0, 1)

	colHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(clrSubtle).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrSubtle).
			Padding(0, 1)

	cardSelectedStyle = cardStyle.
				BorderForeground(clrHighlight)

	breakerOpenStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(clrRed).
				Padding(0, 1)

	footerStyle = lipgloss.NewStyle().Foreground(clrSubtle)
)

func stateColor(s store.TaskStatus) lipgloss.AdaptiveColor {
	switch {
	case s == store.StatusFailed || s == store.StatusCancelled:
		return clrRed
	case s == store.StatusDeployed || s == store.StatusVerified || s == store.StatusComplete:
		return clrGreen
	case store.IsRunningLike(s):
		return clrYellow
	default:
		return clrSubtle
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.screen == screenDetail {
		return m.viewDetail()
	}
	return m.viewBoard()
}

func (m Model) viewBoard() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("overseer"))
	if m.breaker != nil && m.breaker.Tripped {
		b.WriteString("  ")
		b.WriteString(breakerOpenStyle.Render(fmt.Sprintf(
			"BREAKER OPEN  failures=%d  last=%s",
			m.breaker.ConsecutiveFailures, m.breaker.LastFailureTask)))
	}
	b.WriteString("\n\n")

	colWidth := 22
	if m.width > 0 {
		if w := m.width/numCols - 2; w > 14 {
			colWidth = w
		}
	}

	cols := make([]string, numCols)
	for i := 0; i < numCols; i++ {
		cols[i] = m.renderColumn(i, colWidth)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("←/→ column  ↑/↓ task  enter detail  r refresh  q quit"))
	return b.String()
}

func (m Model) renderColumn(col, width int) string {
	var b strings.Builder
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("%s (%d)", columnLabels[col], len(m.columns[col]))))
	b.WriteString("\n")
	for row, t := range m.columns[col] {
		style := cardStyle
		if col == m.cursorCol && row == m.cursorRow {
			style = cardSelectedStyle
		}
		label := lipgloss.NewStyle().Foreground(stateColor(t.Status)).Render(string(t.Status))
		line := fmt.Sprintf("%s %s", t.ID, label)
		if t.Retries > 0 {
			line += fmt.Sprintf(" r%d", t.Retries)
		}
		b.WriteString(style.Width(width).Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewDetail() string {
	var b strings.Builder
	title := "task"
	if m.detail != nil {
		title = fmt.Sprintf("task %s  [%s]", m.detail.ID, m.detail.Status)
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString(m.history.View())
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("↑/↓ scroll  esc back  ctrl+c quit"))
	return b.String()
}
