package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/suite"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup wizard for nbcheck",
	Long: `Walks you through configuring nbcheck:
  - Run-history database (SQLite or MySQL)
  - Git provider credentials (GitHub, GitLab, Azure DevOps)
  - Check defaults and the suites directory
  - Notification channels

It can also write a starter .nbcheck.yaml suite into the current directory
so the repository carries its own checks.`,
	RunE: runInit,
}

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#14B8A6")).
	MarginBottom(1)

var successStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#10B981"))

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F59E0B"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6B7280"))

var critSummaryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))

func severitySummaryStyle(severity string) lipgloss.Style {
	switch severity {
	case "CRITICAL":
		return critSummaryStyle
	case "HIGH":
		return warnStyle
	default:
		return dimStyle
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	fmt.Println()
	fmt.Println(headerStyle.Render("  nbcheck — notebook output regression checker"))
	fmt.Println(dimStyle.Render("  Validates the stored outputs of executed notebooks; never runs them.\n"))

	// Load existing config or start fresh.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = &config.Config{}
	}

	// Ensure ~/.nbcheck/ exists.
	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("creating nbcheck directories: %w", err)
	}

	// --- Step 1: Database ---
	fmt.Println(headerStyle.Render("  Step 1/4 · Run History Database"))
	fmt.Println(dimStyle.Render("  Runs and findings are stored here so regressions can be tracked over time.\n"))

	driver := cfg.Database.Driver
	if driver == "" {
		driver = "sqlite"
	}
	dbPath := cfg.Database.Path
	dsn := cfg.Database.DSN

	dbForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Database backend").
				Options(
					huh.NewOption("SQLite — zero-setup local file (recommended)", "sqlite"),
					huh.NewOption("MySQL — shared server for team use", "mysql"),
				).
				Value(&driver),
			huh.NewInput().
				Title("SQLite file path").
				Description("Only used with the SQLite backend. Leave blank for ~/.nbcheck/nbcheck.db.").
				Placeholder("~/.nbcheck/nbcheck.db").
				Value(&dbPath),
			huh.NewInput().
				Title("MySQL DSN").
				Description("Only used with the MySQL backend. Example: user:pass@tcp(host:3306)/nbcheck").
				Placeholder("user:pass@tcp(localhost:3306)/nbcheck").
				Value(&dsn),
		),
	)
	if err := dbForm.Run(); err != nil {
		return err
	}
	cfg.Database.Driver = driver
	cfg.Database.Path = dbPath
	cfg.Database.DSN = dsn

	// --- Step 2: Git credentials ---
	fmt.Println(headerStyle.Render("\n  Step 2/4 · Git Credentials (optional)"))
	fmt.Println(dimStyle.Render("  Only needed to check private repositories with --repo or schedules.\n"))

	var githubToken string
	if len(cfg.Git.GitHub) > 0 {
		githubToken = cfg.Git.GitHub[0].Token
	}
	githubHost := "github.com"
	if len(cfg.Git.GitHub) > 0 && cfg.Git.GitHub[0].Host != "" {
		githubHost = cfg.Git.GitHub[0].Host
	}

	ghForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GitHub Personal Access Token (leave blank to skip)").
				Description("Read access to the repositories whose notebooks you check.").
				Placeholder("ghp_...").
				EchoMode(huh.EchoModePassword).
				Value(&githubToken),
			huh.NewInput().
				Title("GitHub host").
				Description("Use 'github.com' for public GitHub or your enterprise hostname").
				Value(&githubHost),
		),
	)
	if err := ghForm.Run(); err != nil {
		return err
	}
	if githubToken != "" {
		cfg.Git.GitHub = []config.GitHubConfig{{Token: githubToken, Host: githubHost}}
	}

	var addGitLab, addAzure bool
	extraForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Add GitLab credentials?").
				Value(&addGitLab),
			huh.NewConfirm().
				Title("Add Azure DevOps credentials?").
				Value(&addAzure),
		),
	)
	if err := extraForm.Run(); err != nil {
		return err
	}

	if addGitLab {
		glToken, glHost := "", "gitlab.com"
		if len(cfg.Git.GitLab) > 0 {
			glToken = cfg.Git.GitLab[0].Token
			glHost = cfg.Git.GitLab[0].Host
		}
		glForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("GitLab token").Placeholder("glpat-...").EchoMode(huh.EchoModePassword).Value(&glToken),
			huh.NewInput().Title("GitLab host").Value(&glHost),
		))
		if err := glForm.Run(); err != nil {
			return err
		}
		cfg.Git.GitLab = []config.GitLabConfig{{Token: glToken, Host: glHost}}
	}

	if addAzure {
		var azToken, azOrg string
		if len(cfg.Git.Azure) > 0 {
			azToken = cfg.Git.Azure[0].Token
			azOrg = cfg.Git.Azure[0].Org
		}
		azForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Azure DevOps PAT").EchoMode(huh.EchoModePassword).Value(&azToken),
			huh.NewInput().Title("Azure DevOps organisation name").Value(&azOrg),
		))
		if err := azForm.Run(); err != nil {
			return err
		}
		cfg.Git.Azure = []config.AzureConfig{{Token: azToken, Org: azOrg, Host: "dev.azure.com"}}
	}

	// --- Step 3: Check defaults ---
	fmt.Println(headerStyle.Render("\n  Step 3/4 · Check Defaults"))

	defaultSuite := cfg.Check.Suite
	if defaultSuite == "" {
		defaultSuite = suite.DefaultSuite
	}
	workers := strconv.Itoa(cfg.Check.Workers)
	if cfg.Check.Workers == 0 {
		workers = "4"
	}

	checkForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default suite").
				Description("Used when a target has no .nbcheck.yaml of its own.").
				Options(
					huh.NewOption("clean-outputs — no error outputs anywhere", "clean-outputs"),
					huh.NewOption("eval-regression — error sweep plus a pinned eval metric", "eval-regression"),
				).
				Value(&defaultSuite),
			huh.NewInput().
				Title("Parallel notebook workers").
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 {
						return fmt.Errorf("enter a positive number")
					}
					return nil
				}).
				Value(&workers),
		),
	)
	if err := checkForm.Run(); err != nil {
		return err
	}
	cfg.Check.Suite = defaultSuite
	cfg.Check.Workers, _ = strconv.Atoi(workers)

	suitesDir := cfg.Check.SuitesDir
	if suitesDir == "" {
		suitesDir = suite.DefaultDir()
		cfg.Check.SuitesDir = suitesDir
	}
	if err := suite.Init(suitesDir); err != nil {
		fmt.Println(warnStyle.Render("  Could not seed suites directory: " + err.Error()))
	} else {
		fmt.Printf("  Suites directory ready: %s\n", dimStyle.Render(suitesDir))
	}

	// --- Step 4: Notifications ---
	fmt.Println(headerStyle.Render("\n  Step 4/4 · Notifications (optional)"))
	fmt.Println(dimStyle.Render("  Get a message when a scheduled check finds a regression.\n"))

	slackURL := cfg.Notify.Slack.WebhookURL
	webhookURL := cfg.Notify.Webhook.URL
	webhookSecret := cfg.Notify.Webhook.Secret

	notifyForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Slack incoming-webhook URL (leave blank to skip)").
				Placeholder("https://hooks.slack.com/services/...").
				Value(&slackURL),
			huh.NewInput().
				Title("Generic webhook URL (leave blank to skip)").
				Placeholder("https://ci.example.com/hooks/nbcheck").
				Value(&webhookURL),
			huh.NewInput().
				Title("Webhook HMAC secret (optional)").
				EchoMode(huh.EchoModePassword).
				Value(&webhookSecret),
		),
	)
	if err := notifyForm.Run(); err != nil {
		return err
	}
	cfg.Notify.Slack.WebhookURL = slackURL
	cfg.Notify.Webhook.URL = webhookURL
	cfg.Notify.Webhook.Secret = webhookSecret

	// Offer a starter suite for the current repository.
	var writeStarter bool
	starterForm := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Write a starter .nbcheck.yaml into the current directory?").
			Description("The suite travels with the repository; edit patterns and accepted values there.").
			Value(&writeStarter),
	))
	if err := starterForm.Run(); err != nil {
		return err
	}
	if writeStarter {
		if err := writeStarterSuite("."); err != nil {
			fmt.Println(warnStyle.Render("  Could not write .nbcheck.yaml: " + err.Error()))
		} else {
			fmt.Println(successStyle.Render("  Wrote .nbcheck.yaml"))
		}
	}

	// Save config.
	cfgPath, _ := config.ConfigPath(cfgFile)
	if err := config.Save(cfg, cfgPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("  Setup complete!"))
	fmt.Printf("  Config saved to: %s\n\n", dimStyle.Render(cfgPath))

	fmt.Println(dimStyle.Render("  Next steps:"))
	fmt.Println(dimStyle.Render("    nbcheck doctor              — verify configuration and database"))
	fmt.Println(dimStyle.Render("    nbcheck check <path>        — check a directory of notebooks"))
	fmt.Println(dimStyle.Render("    nbcheck check --repo <url>  — clone and check a repository"))
	fmt.Println(dimStyle.Render("    nbcheck ui                  — launch the terminal dashboard"))
	fmt.Println()

	return nil
}

// writeStarterSuite copies the eval-regression template as the directory's
// own suite file, refusing to overwrite an existing one.
func writeStarterSuite(dir string) error {
	dest := filepath.Join(dir, suite.RepoSuiteFile)
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%s already exists", dest)
	}
	data, err := suite.BundledBytes("eval-regression")
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
