package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/internal/notify"
	"github.com/notebookci/nbcheck/internal/remote"
	"github.com/notebookci/nbcheck/internal/repository"
	"github.com/notebookci/nbcheck/internal/runner"
	"github.com/notebookci/nbcheck/internal/suite"
	"github.com/notebookci/nbcheck/models"
	"github.com/spf13/cobra"
)

var (
	checkRepoURL   string
	checkBranch    string
	checkSuiteFile string
	checkSuiteName string
	checkOnly      []string
	checkParallel  bool
	checkWorkers   int
	checkNoDB      bool
	checkReportTo  string
	checkToken     string
	checkJSONOut   bool
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Check notebook outputs against a suite",
	Long: `Runs the resolved check suite against every notebook under the target.
The target is a local directory (default: current directory) or, with --repo,
a repository that is shallow-cloned first.

Examples:
  nbcheck check
  nbcheck check notebooks/ --suite eval-regression.yaml
  nbcheck check --repo https://github.com/example/tutorials --branch main
  nbcheck check --only eval-metric --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkRepoURL, "repo", "", "Repository URL or owner/repo slug to clone and check")
	checkCmd.Flags().StringVar(&checkBranch, "branch", "", "Branch to check (default: repo default branch)")
	checkCmd.Flags().StringVar(&checkSuiteFile, "suite", "", "Suite file to run (overrides the target's .nbcheck.yaml)")
	checkCmd.Flags().StringVar(&checkSuiteName, "suite-name", "", "Named suite to run when the target has no suite file")
	checkCmd.Flags().StringSliceVar(&checkOnly, "only", nil, "Comma-separated check ids to run (default: all)")
	checkCmd.Flags().BoolVar(&checkParallel, "parallel", true, "Check notebooks in parallel")
	checkCmd.Flags().IntVar(&checkWorkers, "workers", 0, "Parallel notebook workers (default: config check.workers)")
	checkCmd.Flags().BoolVar(&checkNoDB, "no-db", false, "Skip run persistence; report only")
	checkCmd.Flags().StringVar(&checkReportTo, "report-to", "", "Push the finished run to a central nbcheck server URL")
	checkCmd.Flags().StringVar(&checkToken, "token", "", "Bearer token for --report-to (default: config remote.token)")
	checkCmd.Flags().BoolVar(&checkJSONOut, "json", false, "Print the run report as JSON instead of a table")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var db database.DB
	if !checkNoDB {
		db, err = database.New(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	target := "."
	if len(args) == 1 {
		target = args[0]
	}

	opts := &runner.RunOptions{
		Target:   target,
		Branch:   checkBranch,
		Workers:  checkWorkers,
		Parallel: checkParallel,
	}
	if opts.Workers == 0 {
		opts.Workers = cfg.Check.Workers
	}

	// With --repo, clone first and check the clone.
	if checkRepoURL != "" {
		repoURL := repository.NormalizeURL(checkRepoURL)
		token := ""
		if provider, err := repository.DetectProvider(repoURL); err == nil {
			token = repository.TokenForProvider(cfg, provider)
		}

		cm := repository.NewCloneManager()
		clone, err := cm.Clone(ctx, repoURL, token, checkBranch)
		if err != nil {
			return fmt.Errorf("cloning repository: %w", err)
		}
		defer cm.Cleanup(clone)

		slog.Info("Repository cloned",
			"path", clone.LocalPath, "commit", clone.Commit, "branch", clone.Branch)
		opts.Target = clone.LocalPath
		opts.Branch = clone.Branch
		if clone.Owner != "" && clone.Repo != "" {
			opts.Repo = clone.Owner + "/" + clone.Repo
		} else {
			opts.Repo = checkRepoURL
		}
	}

	st, err := suite.Resolve(checkSuiteFile, opts.Target,
		firstNonEmptyStr(checkSuiteName, cfg.Check.Suite), cfg.Check.SuitesDir)
	if err != nil {
		return fmt.Errorf("resolving suite: %w", err)
	}
	opts.Suite = st

	checks, err := st.Build()
	if err != nil {
		return err
	}
	checks = runner.FilterChecks(checks, checkOnly)
	if len(checks) == 0 {
		return fmt.Errorf("no checks match --only %v in suite %q", checkOnly, st.Name)
	}

	results, err := runner.NewRunner(checks, db).Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("running checks: %w", err)
	}
	run := results.AsRun(opts)

	report := buildRunReport(run, results)
	if checkJSONOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printCheckSummary(st, results)
	}

	notifier := notify.NewDispatcher(cfg.Notify)
	if notifier.IsAnyConfigured() {
		for _, evt := range notify.EventsForRun(run) {
			notifier.Notify(ctx, evt)
		}
	}

	pushReport(ctx, cfg, report)

	if results.FindingsTotal() > 0 {
		return errFindingsFound
	}
	if results.Status == "failed" {
		return fmt.Errorf("no notebook could be checked")
	}
	return nil
}

// buildRunReport snapshots the run graph for --json output and --report-to.
func buildRunReport(run *models.Run, results *runner.RunResults) *models.RunReport {
	report := &models.RunReport{Run: *run, Findings: results.AllFindings()}

	names := make([]string, 0, len(results.NotebookResults))
	for name := range results.NotebookResults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res := results.NotebookResults[name]
		report.Notebooks = append(report.Notebooks, models.NotebookResult{
			RunID:         results.RunID,
			Notebook:      name,
			Status:        res.Status,
			ChecksRun:     res.ChecksRun,
			FindingsCount: len(res.Findings),
			DurationMs:    int64(res.DurationSec * 1000),
			ErrorMsg:      res.Error,
		})
	}
	return report
}

// pushReport sends the run to a central server when --report-to or
// remote.url is configured. Push failures never fail the check itself.
func pushReport(ctx context.Context, cfg *config.Config, report *models.RunReport) {
	var client *remote.Client
	if checkReportTo != "" {
		client = remote.NewWithTarget(checkReportTo, firstNonEmptyStr(checkToken, cfg.Remote.Token))
	} else {
		client = remote.New(cfg.Remote)
	}
	if client == nil {
		return
	}

	if report.Run.UniqueKey == "" {
		report.Run.UniqueKey = fmt.Sprintf("%s:%s:%s:%d",
			report.Run.Repo, report.Run.Branch, report.Run.Path, report.Run.StartedAt.UnixNano())
	}
	id, err := client.PushRun(ctx, report)
	if err != nil {
		slog.Warn("Failed to push run report", "server", client.BaseURL(), "error", err)
		fmt.Printf("Warning: report push to %s failed: %s\n", client.BaseURL(), err)
		return
	}
	slog.Info("Run report pushed", "server", client.BaseURL(), "remote_id", id)
	fmt.Printf("Report pushed to %s (run #%d)\n", client.BaseURL(), id)
}

func printCheckSummary(st *suite.Suite, results *runner.RunResults) {
	fmt.Println()
	fmt.Println(headerStyle.Render(fmt.Sprintf("  Suite %q — %s", st.Name, results.Status)))

	names := make([]string, 0, len(results.NotebookResults))
	for name := range results.NotebookResults {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := results.NotebookResults[name]
		switch res.Status {
		case "passed":
			fmt.Printf("  %s  %s\n", successStyle.Render("PASS"), name)
		case "failed":
			fmt.Printf("  %s  %s — %d finding(s)\n", warnStyle.Render("FAIL"), name, len(res.Findings))
			for _, f := range res.Findings {
				fmt.Printf("        [%s] %s: %s\n",
					severitySummaryStyle(string(f.Severity)).Render(string(f.Severity)), f.CheckID, f.Message)
			}
		default:
			fmt.Printf("  %s  %s — %s\n", warnStyle.Render("ERR "), name, res.Error)
		}
	}

	fmt.Println()
	fmt.Printf("  Notebooks: %d checked, %d failed\n",
		len(results.NotebookResults), results.NotebooksFailed())
	fmt.Printf("  Findings — Critical: %d  High: %d  Medium: %d  Low: %d\n",
		results.Critical, results.High, results.Medium, results.Low)
	if results.Delta != nil {
		fmt.Printf("  Since last run — introduced: %d  resolved: %d  reintroduced: %d\n",
			results.Delta.IntroducedCount, results.Delta.ResolvedCount, results.Delta.ReintroducedCount)
	}
	if results.RunID > 0 {
		fmt.Println()
		fmt.Println(dimStyle.Render("  Run saved. Inspect it with 'nbcheck ui' or the serve API."))
	}
}

func firstNonEmptyStr(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
