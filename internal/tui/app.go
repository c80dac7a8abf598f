package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/database"
)

// Tab represents a TUI navigation tab.
type Tab int

const (
	TabDashboard Tab = iota
	TabRuns
	TabFindings
)

var tabNames = []string{"Dashboard", "Runs", "Findings"}
var tabCompactNames = []string{"Dash", "Runs", "Find"}
var tabTinyNames = []string{"D", "R", "F"}

// App is the root bubbletea model.
type App struct {
	cfg       *config.Config
	db        database.DB
	width     int
	height    int
	activeTab Tab
	dashboard DashboardModel
	runs      RunsModel
	findings  FindingsModel
}

// NewApp creates the TUI application.
func NewApp(cfg *config.Config, db database.DB) *App {
	return &App{
		cfg:       cfg,
		db:        db,
		dashboard: NewDashboardModel(db),
		runs:      NewRunsModel(db),
		findings:  NewFindingsModel(db),
	}
}

// Run starts the bubbletea program.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.dashboard.Init(),
		a.runs.Init(),
		a.findings.Init(),
	)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		contentW := msg.Width - 2
		if contentW < 20 {
			contentW = 20
		}
		contentH := msg.Height - 7
		if contentH < 8 {
			contentH = 8
		}
		a.dashboard.SetSize(contentW, contentH)
		a.runs.SetSize(contentW, contentH)
		a.findings.SetSize(contentW, contentH)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "1":
			a.activeTab = TabDashboard
		case "2":
			a.activeTab = TabRuns
		case "3":
			a.activeTab = TabFindings
		case "tab":
			a.activeTab = (a.activeTab + 1) % Tab(len(tabNames))
		case "shift+tab":
			a.activeTab--
			if a.activeTab < 0 {
				a.activeTab = Tab(len(tabNames) - 1)
			}
		}
	}

	// Delegate to active view.
	switch a.activeTab {
	case TabDashboard:
		newDash, cmd := a.dashboard.Update(msg)
		a.dashboard = newDash.(DashboardModel)
		cmds = append(cmds, cmd)
	case TabRuns:
		newRuns, cmd := a.runs.Update(msg)
		a.runs = newRuns.(RunsModel)
		cmds = append(cmds, cmd)
	case TabFindings:
		newFindings, cmd := a.findings.Update(msg)
		a.findings = newFindings.(FindingsModel)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	nav := a.renderTabs()

	var content string
	switch a.activeTab {
	case TabDashboard:
		content = a.dashboard.View()
	case TabRuns:
		content = a.runs.View()
	case TabFindings:
		content = a.findings.View()
	}

	contentBox := lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		MaxHeight(max(1, a.height-4)).
		Render(content)

	status := lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		Foreground(slateDim).
		Render("tab next  shift+tab prev  1-3 jump  q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		nav,
		contentBox,
		status,
	)
}

func (a *App) renderHeader() string {
	row := lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render("nbcheck"),
		"  ",
		dimStyle.Render("notebook output regression checks"),
		"  ",
		mutedBadgeStyle.Render(" "+tabNames[a.activeTab]+" "),
	)
	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(line).
		Width(a.width).
		Padding(0, 1).
		Render(row)
}

func (a *App) renderTabs() string {
	labels := tabNames
	rendered := a.renderTabLabels(labels)
	maxWidth := a.width - 2
	if maxWidth < 10 {
		maxWidth = 10
	}
	if lipgloss.Width(rendered) > maxWidth {
		labels = tabCompactNames
		rendered = a.renderTabLabels(labels)
	}
	if lipgloss.Width(rendered) > maxWidth {
		rendered = a.renderTabLabels(tabTinyNames)
	}

	return lipgloss.NewStyle().
		Width(a.width).
		Padding(0, 1).
		Foreground(slate).
		Render(rendered)
}

func (a *App) renderTabLabels(labels []string) string {
	parts := make([]string, 0, len(labels))
	for i, name := range labels {
		label := fmt.Sprintf("%d:%s", i+1, name)
		if Tab(i) == a.activeTab {
			parts = append(parts, lipgloss.NewStyle().Bold(true).Foreground(accent).Render(label))
		} else {
			parts = append(parts, dimStyle.Render(label))
		}
		if i < len(labels)-1 {
			parts = append(parts, dimStyle.Render("  ·  "))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
