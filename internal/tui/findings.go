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

// FindingsModel displays open finding lifecycles with kind filters.
type FindingsModel struct {
	db       database.DB
	findings []models.FindingLifecycle
	width    int
	height   int
	cursor   int
	filter   string // "error_outputs" | "value_mismatch" | "cell_cardinality" | "" (all)
	loading  bool
}

type findingsLoadedMsg struct {
	findings []models.FindingLifecycle
}

// NewFindingsModel creates a FindingsModel.
func NewFindingsModel(db database.DB) FindingsModel {
	return FindingsModel{db: db, loading: true}
}

func (f FindingsModel) Init() tea.Cmd {
	return f.loadCmd()
}

func (f FindingsModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var lifecycles []models.FindingLifecycle
		_ = f.db.Select(ctx, &lifecycles,
			`SELECT * FROM finding_lifecycles WHERE status = 'open'
			 ORDER BY severity, last_seen_at DESC LIMIT 200`)
		return findingsLoadedMsg{findings: lifecycles}
	}
}

func (f FindingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case findingsLoadedMsg:
		f.findings = msg.findings
		f.loading = false
		return f, tea.Tick(30*time.Second, func(t time.Time) tea.Msg {
			return f.loadCmd()()
		})

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			f.cursor++
		case "k", "up":
			if f.cursor > 0 {
				f.cursor--
			}
		case "e":
			f.filter = "error_outputs"
			f.cursor = 0
		case "v":
			f.filter = "value_mismatch"
			f.cursor = 0
		case "c":
			f.filter = "cell_cardinality"
			f.cursor = 0
		case "0":
			f.filter = ""
			f.cursor = 0
		case "r":
			f.loading = true
			return f, f.loadCmd()
		}
	}
	f = f.clampCursor()
	return f, nil
}

func (f *FindingsModel) SetSize(w, h int) {
	f.width = w
	f.height = h
}

func (f FindingsModel) View() string {
	if f.loading && len(f.findings) == 0 {
		return panelStyle.Width(max(20, f.width-2)).Render("Loading findings...")
	}

	rows := ""
	totalRows := 0
	lineLimit := f.height - 10
	if lineLimit < 5 {
		lineLimit = 5
	}

	for _, lc := range f.visible() {
		if totalRows >= lineLimit {
			break
		}
		rows += f.renderRow(totalRows, lc)
		totalRows++
	}

	if rows == "" {
		rows = dimStyle.Render("No open findings.\n")
	}

	counts := f.kindCounts()
	filterBar := lipgloss.JoinHorizontal(lipgloss.Left,
		f.filterChip("All", "", len(f.findings), "0"),
		" ",
		f.filterChip("Errors", "error_outputs", counts["error_outputs"], "e"),
		" ",
		f.filterChip("Values", "value_mismatch", counts["value_mismatch"], "v"),
		" ",
		f.filterChip("Cardinality", "cell_cardinality", counts["cell_cardinality"], "c"),
		"  ",
		keycapStyle.Render("r"),
		" ",
		dimStyle.Render("refresh"),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		panelStyle.Width(max(20, f.width-2)).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				panelHeaderStyle.Render("Open Findings"),
				filterBar,
				"",
				dimStyle.Render("Severity   Check              Notebook                            Detail                   Meta"),
				rows,
				"",
				dimStyle.Render("j/k navigate  e errors  v values  c cardinality  0 all"),
			),
		),
	)
}

// visible applies the active kind filter.
func (f FindingsModel) visible() []models.FindingLifecycle {
	if f.filter == "" {
		return f.findings
	}
	out := make([]models.FindingLifecycle, 0, len(f.findings))
	for _, lc := range f.findings {
		if lc.Kind == f.filter {
			out = append(out, lc)
		}
	}
	return out
}

func (f FindingsModel) kindCounts() map[string]int {
	counts := make(map[string]int, 3)
	for _, lc := range f.findings {
		counts[lc.Kind]++
	}
	return counts
}

func (f FindingsModel) renderRow(idx int, lc models.FindingLifecycle) string {
	cursor := " "
	if idx == f.cursor {
		cursor = "▌"
	}
	meta := fmt.Sprintf("seen ×%d", lc.TotalSeenCount)
	metaText := dimStyle.Render(meta)
	if lc.ReintroducedCount > 0 {
		metaText = lipgloss.NewStyle().Foreground(bgDark).Background(yellow).Padding(0, 1).
			Render(fmt.Sprintf("REINTRODUCED ×%d", lc.ReintroducedCount))
	}

	row := lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Width(2).Foreground(accent).Render(cursor),
		lipgloss.NewStyle().Width(10).Render(severityStyle(string(lc.Severity)).Render(string(lc.Severity))),
		lipgloss.NewStyle().Width(19).Foreground(slate).Render(truncate(lc.CheckID, 17)),
		lipgloss.NewStyle().Width(36).Foreground(ink).Render(truncate(lc.Notebook, 34)),
		lipgloss.NewStyle().Width(25).Foreground(slate).Render(truncate(lc.Message, 23)),
		metaText,
	)
	if idx == f.cursor {
		return selectedRowStyle.Width(max(20, f.width-6)).Render(row) + "\n"
	}
	return row + "\n"
}

func (f FindingsModel) filterChip(label, value string, count int, key string) string {
	text := fmt.Sprintf("%s %d", label, count)
	if f.filter == value {
		return activeTabStyle.Render(text)
	}
	return tabStyle.Render(text + " [" + key + "]")
}

func (f FindingsModel) clampCursor() FindingsModel {
	total := len(f.visible())
	if total == 0 {
		f.cursor = 0
		return f
	}
	if f.cursor < 0 {
		f.cursor = 0
	}
	if f.cursor >= total {
		f.cursor = total - 1
	}
	return f
}
