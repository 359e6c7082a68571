// Package tui is a read-only live board for the supervisor: tasks
// grouped by lifecycle phase, the circuit breaker's state, and a detail
// panel with each task's transition and stuck-check history.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/okral/overseer/internal/store"
)

// screen represents which panel the TUI is showing.
type screen int

const (
	screenBoard  screen = iota // grouped columns (main)
	screenDetail               // one task's history
)

// Column groups for the board. Phases, not raw states: the fourteen
// lifecycle states would be unreadable as fourteen columns.
const (
	colQueue  = 0
	colActive = 1
	colReview = 2
	colDone   = 3
	colFailed = 4
	numCols   = 5
)

var columnLabels = [numCols]string{"QUEUE", "ACTIVE", "REVIEW", "DONE", "FAILED"}

// columnFor maps a lifecycle state to its board column.
func columnFor(s store.TaskStatus) int {
	switch s {
	case store.StatusQueued, store.StatusRetrying, store.StatusBlocked:
		return colQueue
	case store.StatusDispatched, store.StatusRunning, store.StatusEvaluating:
		return colActive
	case store.StatusComplete, store.StatusPRReview, store.StatusReviewTriage,
		store.StatusMerging, store.StatusVerified:
		return colReview
	case store.StatusDeployed:
		return colDone
	default:
		return colFailed
	}
}

// refreshEvery is the board's polling interval.
const refreshEvery = 2 * time.Second

// Model is the top-level bubbletea model.
type Model struct {
	store  *store.Store
	width  int
	height int

	screen  screen
	columns [numCols][]store.Task
	breaker *store.BreakerState

	cursorCol int
	cursorRow int

	// Detail panel.
	detail   *store.Task
	history  viewport.Model
	quitting bool
}

// New creates a new board model.
func New(s *store.Store) Model {
	vp := viewport.New(60, 20)
	return Model{store: s, history: vp}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadBoard(), tick())
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type boardLoadedMsg struct {
	columns [numCols][]store.Task
	breaker *store.BreakerState
	err     error
}

// loadBoard reads the full board from the store.
func (m Model) loadBoard() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		tasks, err := s.ListTasks("")
		if err != nil {
			return boardLoadedMsg{err: err}
		}
		var columns [numCols][]store.Task
		for _, t := range tasks {
			col := columnFor(t.Status)
			columns[col] = append(columns[col], t)
		}
		breaker, err := s.BreakerRow()
		if err != nil {
			return boardLoadedMsg{err: err}
		}
		return boardLoadedMsg{columns: columns, breaker: breaker}
	}
}

// selected returns the task under the cursor, or nil.
func (m Model) selected() *store.Task {
	col := m.columns[m.cursorCol]
	if m.cursorRow < 0 || m.cursorRow >= len(col) {
		return nil
	}
	return &col[m.cursorRow]
}

func (m *Model) clampCursor() {
	if m.cursorCol < 0 {
		m.cursorCol = 0
	}
	if m.cursorCol >= numCols {
		m.cursorCol = numCols - 1
	}
	n := len(m.columns[m.cursorCol])
	if m.cursorRow >= n {
		m.cursorRow = n - 1
	}
	if m.cursorRow < 0 {
		m.cursorRow = 0
	}
}
