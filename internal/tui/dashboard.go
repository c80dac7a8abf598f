package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/models"
)

// DashboardModel shows the overview: severity totals and recent runs.
type DashboardModel struct {
	db       database.DB
	runs     []models.Run
	width    int
	height   int
	lastLoad time.Time
	loading  bool
}

// dashLoadedMsg carries loaded runs.
type dashLoadedMsg struct{ runs []models.Run }

// NewDashboardModel creates a DashboardModel.
func NewDashboardModel(db database.DB) DashboardModel {
	return DashboardModel{db: db, loading: true}
}

func (d DashboardModel) Init() tea.Cmd {
	return d.loadCmd()
}

func (d DashboardModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		var runs []models.Run
		ctx := context.Background()
		_ = d.db.Select(ctx, &runs,
			`SELECT * FROM runs ORDER BY started_at DESC LIMIT 20`)
		return dashLoadedMsg{runs: runs}
	}
}

func (d DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dashLoadedMsg:
		d.runs = msg.runs
		d.loading = false
		d.lastLoad = time.Now()
		// Refresh every 10 seconds.
		return d, tea.Tick(10*time.Second, func(t time.Time) tea.Msg {
			return d.loadCmd()()
		})
	case tea.KeyMsg:
		if msg.String() == "r" {
			d.loading = true
			return d, d.loadCmd()
		}
	}
	return d, nil
}

func (d *DashboardModel) SetSize(w, h int) {
	d.width = w
	d.height = h
}

func (d DashboardModel) View() string {
	if d.loading && len(d.runs) == 0 {
		return panelStyle.Width(max(20, d.width-2)).Render("Loading runs...")
	}

	// Summary counts across the recent runs.
	var critical, high, medium, low int
	for _, run := range d.runs {
		critical += run.FindingsCritical
		high += run.FindingsHigh
		medium += run.FindingsMedium
		low += run.FindingsLow
	}

	cardW := 18
	if d.width >= 100 {
		cardW = 20
	}
	summary := lipgloss.JoinHorizontal(lipgloss.Top,
		renderCounter("Critical", critical, criticalStyle, cardW),
		renderCounter("High", high, highStyle, cardW),
		renderCounter("Medium", medium, mediumStyle, cardW),
		renderCounter("Low", low, lowStyle, cardW),
	)

	lineLimit := d.height - 12
	if lineLimit < 5 {
		lineLimit = 5
	}
	rows := ""
	for i, run := range d.runs {
		if i >= lineLimit {
			break
		}
		target := run.Repo
		if target == "" {
			target = run.Path
		}
		notebooks := fmt.Sprintf("%d/%d nb", run.NotebooksTotal-run.NotebooksFailed, run.NotebooksTotal)
		counts := fmt.Sprintf("C:%d H:%d M:%d L:%d",
			run.FindingsCritical, run.FindingsHigh, run.FindingsMedium, run.FindingsLow)
		row := lipgloss.JoinHorizontal(lipgloss.Left,
			lipgloss.NewStyle().Width(36).Foreground(ink).Render(truncate(target, 34)),
			lipgloss.NewStyle().Width(16).Foreground(slate).Render(truncate(run.Suite, 14)),
			lipgloss.NewStyle().Width(12).Render(statusBadge(run.Status)),
			lipgloss.NewStyle().Width(12).Foreground(slate).Render(notebooks),
			dimStyle.Render(counts),
		)
		rows += row + "\n"
	}

	if len(d.runs) == 0 {
		rows = dimStyle.Render("No runs yet. Run: nbcheck check <path>\n")
	}

	updated := "never"
	if !d.lastLoad.IsZero() {
		updated = d.lastLoad.Format("15:04:05")
	}
	refreshInfo := lipgloss.JoinHorizontal(lipgloss.Left,
		keycapStyle.Render("r"),
		" ",
		dimStyle.Render("refresh"),
		"   ",
		dimStyle.Render("updated "+updated),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Padding(0, 1).Render(summary),
		panelStyle.Width(max(20, d.width-2)).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				panelHeaderStyle.Render("Recent Runs"),
				dimStyle.Render("Target                                 Suite           Status      Notebooks   Findings"),
				rows,
				refreshInfo,
			),
		),
	)
}

func renderCounter(label string, count int, style lipgloss.Style, width int) string {
	return boxStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Center,
			style.Bold(true).Render(fmt.Sprintf("%d", count)),
			dimStyle.Render(strings.ToUpper(label)),
		),
	) + "  "
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max+1:]
}
