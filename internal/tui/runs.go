package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/models"
)

// RunsModel lists run history with per-notebook detail for the selection.
type RunsModel struct {
	db        database.DB
	runs      []models.Run
	notebooks []models.NotebookResult
	width     int
	height    int
	cursor    int
	loading   bool
}

type runsLoadedMsg struct{ runs []models.Run }

type runDetailMsg struct {
	runID     int64
	notebooks []models.NotebookResult
}

// NewRunsModel creates a RunsModel.
func NewRunsModel(db database.DB) RunsModel {
	return RunsModel{db: db, loading: true}
}

func (m RunsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m RunsModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		var runs []models.Run
		_ = m.db.Select(context.Background(), &runs,
			`SELECT * FROM runs ORDER BY started_at DESC LIMIT 100`)
		return runsLoadedMsg{runs: runs}
	}
}

func (m RunsModel) detailCmd() tea.Cmd {
	if m.cursor >= len(m.runs) {
		return nil
	}
	runID := m.runs[m.cursor].ID
	return func() tea.Msg {
		var notebooks []models.NotebookResult
		_ = m.db.Select(context.Background(), &notebooks,
			`SELECT * FROM notebook_results WHERE run_id = ? ORDER BY notebook`, runID)
		return runDetailMsg{runID: runID, notebooks: notebooks}
	}
}

func (m RunsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runsLoadedMsg:
		m.runs = msg.runs
		m.loading = false
		if m.cursor >= len(m.runs) {
			m.cursor = 0
		}
		return m, m.detailCmd()

	case runDetailMsg:
		// Ignore stale detail loads after the cursor moved on.
		if m.cursor < len(m.runs) && m.runs[m.cursor].ID == msg.runID {
			m.notebooks = msg.notebooks
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if m.cursor < len(m.runs)-1 {
				m.cursor++
				m.notebooks = nil
				return m, m.detailCmd()
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
				m.notebooks = nil
				return m, m.detailCmd()
			}
		case "r":
			m.loading = true
			return m, m.loadCmd()
		}
	}
	return m, nil
}

func (m *RunsModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m RunsModel) View() string {
	if m.loading && len(m.runs) == 0 {
		return panelStyle.Width(max(20, m.width-2)).Render("Loading runs...")
	}

	listLimit := (m.height - 14) / 2
	if listLimit < 5 {
		listLimit = 5
	}

	rows := ""
	start := 0
	if m.cursor >= listLimit {
		start = m.cursor - listLimit + 1
	}
	for i := start; i < len(m.runs) && i < start+listLimit; i++ {
		run := m.runs[i]
		target := run.Repo
		if target == "" {
			target = run.Path
		}
		if run.Branch != "" {
			target += "@" + run.Branch
		}
		started := run.StartedAt.Local().Format("Jan 02 15:04")
		row := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(6).Foreground(slate).Render(fmt.Sprintf("#%d", run.ID)),
			lipgloss.NewStyle().Width(34).Foreground(ink).Render(truncate(target, 32)),
			lipgloss.NewStyle().Width(12).Render(statusBadge(run.Status)),
			lipgloss.NewStyle().Width(10).Foreground(slate).Render(fmt.Sprintf("%d finds", run.FindingsTotal())),
			lipgloss.NewStyle().Width(14).Foreground(slate).Render(fmt.Sprintf("+%d/-%d", run.Introduced, run.Resolved)),
			dimStyle.Render(started),
		)
		if i == m.cursor {
			rows += selectedRowStyle.Width(max(20, m.width-6)).Render(row) + "\n"
		} else {
			rows += row + "\n"
		}
	}
	if len(m.runs) == 0 {
		rows = dimStyle.Render("No runs recorded.\n")
	}

	detail := m.renderDetail()

	return lipgloss.JoinVertical(lipgloss.Left,
		panelStyle.Width(max(20, m.width-2)).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				panelHeaderStyle.Render("Run History"),
				dimStyle.Render("ID    Target                            Status      Findings  New/Fixed     Started"),
				rows,
				dimStyle.Render("j/k navigate  r refresh"),
			),
		),
		detail,
	)
}

func (m RunsModel) renderDetail() string {
	if m.cursor >= len(m.runs) {
		return ""
	}
	run := m.runs[m.cursor]

	detailLimit := m.height/2 - 6
	if detailLimit < 3 {
		detailLimit = 3
	}

	rows := ""
	for i, nb := range m.notebooks {
		if i >= detailLimit {
			rows += dimStyle.Render(fmt.Sprintf("… %d more\n", len(m.notebooks)-i))
			break
		}
		dur := (time.Duration(nb.DurationMs) * time.Millisecond).Round(time.Millisecond)
		meta := fmt.Sprintf("%d checks, %d findings, %s", nb.ChecksRun, nb.FindingsCount, dur)
		if nb.ErrorMsg != "" {
			meta = truncate(nb.ErrorMsg, 48)
		}
		rows += lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(44).Foreground(ink).Render(truncate(nb.Notebook, 42)),
			lipgloss.NewStyle().Width(10).Render(statusBadge(nb.Status)),
			dimStyle.Render(meta),
		) + "\n"
	}
	if rows == "" {
		rows = dimStyle.Render("No notebook results for this run.\n")
	}

	return panelStyle.Width(max(20, m.width-2)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			panelHeaderStyle.Render(fmt.Sprintf("Run #%d · %s notebooks", run.ID, truncate(run.Suite, 20))),
			rows,
		),
	)
}
