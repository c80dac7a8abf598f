package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/internal/findings"
	"github.com/notebookci/nbcheck/internal/nbformat"
	"github.com/notebookci/nbcheck/internal/suite"
	"github.com/notebookci/nbcheck/internal/validate"
	"github.com/notebookci/nbcheck/models"
)

// Runner orchestrates check execution across the notebooks of a target.
type Runner struct {
	checks []validate.Check
	db     database.DB
}

// NewRunner creates a Runner with the provided check set. db may be nil for
// throwaway runs; persistence is skipped entirely then.
func NewRunner(checks []validate.Check, db database.DB) *Runner {
	return &Runner{checks: checks, db: db}
}

// RunOptions parameterises one run against a target path.
type RunOptions struct {
	// Target is a notebook file or a directory tree of notebooks.
	Target string
	// RunKey uniquely identifies the run row; generated when empty.
	RunKey string
	Repo   string
	Branch string
	// Suite supplies notebook selection globs; may be nil.
	Suite    *suite.Suite
	Workers  int
	Parallel bool
}

// CheckResult holds the outcome of running the check set against one notebook.
type CheckResult struct {
	Notebook string
	// Status: "passed", "failed", "error".
	Status      string
	ChecksRun   int
	DurationSec float64
	Findings    []models.Finding
	// Error holds the load or check error message if Status == "error".
	Error string
}

// RunResults aggregates per-notebook outcomes for one run.
type RunResults struct {
	// Status: "completed", "partial", "failed".
	Status          string
	RunID           int64
	NotebookResults map[string]*CheckResult
	Delta           *findings.RunDelta
	// Severity totals across all notebooks.
	Critical, High, Medium, Low int
}

// FindingsTotal is the number of findings across all severities.
func (r *RunResults) FindingsTotal() int {
	return r.Critical + r.High + r.Medium + r.Low
}

// NotebooksFailed counts notebooks that did not pass.
func (r *RunResults) NotebooksFailed() int {
	n := 0
	for _, res := range r.NotebookResults {
		if res.Status != "passed" {
			n++
		}
	}
	return n
}

// AllFindings returns every finding of the run in notebook order.
func (r *RunResults) AllFindings() []models.Finding {
	var all []models.Finding
	for _, name := range sortedNotebooks(r.NotebookResults) {
		all = append(all, r.NotebookResults[name].Findings...)
	}
	return all
}

// AsRun snapshots the results as a run row, whether or not one was persisted.
// Used to derive notifications and reports for --no-db runs.
func (r *RunResults) AsRun(opts *RunOptions) *models.Run {
	run := &models.Run{
		ID:               r.RunID,
		Repo:             opts.Repo,
		Branch:           opts.Branch,
		Path:             lifecyclePath(opts),
		Status:           r.Status,
		NotebooksTotal:   len(r.NotebookResults),
		NotebooksFailed:  r.NotebooksFailed(),
		FindingsCritical: r.Critical,
		FindingsHigh:     r.High,
		FindingsMedium:   r.Medium,
		FindingsLow:      r.Low,
	}
	if opts.Suite != nil {
		run.Suite = opts.Suite.Name
	}
	if r.Delta != nil {
		run.Introduced = r.Delta.IntroducedCount
		run.Resolved = r.Delta.ResolvedCount
		run.Reintroduced = r.Delta.ReintroducedCount
	}
	return run
}

// Run discovers the target's notebooks and executes all configured checks
// against each. When opts.Parallel is true, notebooks are checked
// concurrently by opts.Workers workers. Partial results are returned even if
// some notebooks fail to load.
func (r *Runner) Run(ctx context.Context, opts *RunOptions) (*RunResults, error) {
	if len(r.checks) == 0 {
		return nil, fmt.Errorf("no checks selected; inspect the suite with 'nbcheck suite show'")
	}

	root, notebooks, err := DiscoverNotebooks(opts.Target, opts.Suite)
	if err != nil {
		return nil, fmt.Errorf("discovering notebooks: %w", err)
	}
	slog.Info("Starting run",
		"target", opts.Target,
		"notebooks", len(notebooks),
		"checks", len(r.checks),
		"parallel", opts.Parallel,
	)

	runID, err := r.createRun(ctx, opts, len(notebooks))
	if err != nil {
		slog.Warn("Failed to create run record", "error", err)
	}

	results := &RunResults{
		NotebookResults: make(map[string]*CheckResult, len(notebooks)),
		RunID:           runID,
	}

	if opts.Parallel {
		results.NotebookResults = r.runParallel(ctx, opts, root, notebooks)
	} else {
		results.NotebookResults = r.runSequential(ctx, opts, root, notebooks)
	}

	// Findings are expected outcomes; only load failures degrade the run.
	evaluated, errored := 0, 0
	for _, res := range results.NotebookResults {
		if res.Status == "error" {
			errored++
		} else {
			evaluated++
		}
	}
	switch {
	case errored == 0:
		results.Status = "completed"
	case evaluated > 0:
		results.Status = "partial"
	default:
		results.Status = "failed"
	}

	r.tallyFindings(results)

	if runID > 0 {
		r.persistNotebookResults(ctx, runID, results)
		results.Delta = r.persistFindings(ctx, runID, opts, results)
		r.finaliseRun(ctx, runID, results)
	}

	return results, nil
}

func (r *Runner) runParallel(ctx context.Context, opts *RunOptions, root string, notebooks []string) map[string]*CheckResult {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(notebooks) {
		workers = len(notebooks)
	}

	jobs := make(chan string)
	resultCh := make(chan *CheckResult, len(notebooks))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for nb := range jobs {
				// resultCh is buffered to len(notebooks); the send never blocks.
				resultCh <- r.runOne(ctx, opts, root, nb)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, nb := range notebooks {
			select {
			case jobs <- nb:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close the result channel after all workers complete.
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make(map[string]*CheckResult)
	for res := range resultCh {
		out[res.Notebook] = res
	}
	return out
}

func (r *Runner) runSequential(ctx context.Context, opts *RunOptions, root string, notebooks []string) map[string]*CheckResult {
	out := make(map[string]*CheckResult)
	for _, nb := range notebooks {
		if ctx.Err() != nil {
			break
		}
		out[nb] = r.runOne(ctx, opts, root, nb)
	}
	return out
}

func (r *Runner) runOne(ctx context.Context, opts *RunOptions, root, notebook string) *CheckResult {
	slog.Debug("Checking notebook", "notebook", notebook, "checks", len(r.checks))
	start := time.Now()
	res := &CheckResult{Notebook: notebook, Status: "passed"}

	nb, err := nbformat.Load(filepath.Join(root, filepath.FromSlash(notebook)))
	if err != nil {
		slog.Error("Failed to load notebook", "notebook", notebook, "error", err)
		res.Status = "error"
		res.Error = err.Error()
		res.DurationSec = time.Since(start).Seconds()
		return res
	}

	for _, check := range r.checks {
		if ctx.Err() != nil {
			break
		}
		res.ChecksRun++
		err := check.Run(nb)
		if err == nil {
			continue
		}
		if failure, ok := validate.AsFailure(err); ok {
			res.Status = "failed"
			res.Findings = append(res.Findings, findings.FromFailure(opts.Repo, notebook, check.ID(), failure)...)
			continue
		}
		res.Status = "error"
		res.Error = err.Error()
	}

	res.DurationSec = time.Since(start).Seconds()
	slog.Info("Notebook checked",
		"notebook", notebook,
		"status", res.Status,
		"findings", len(res.Findings),
		"duration", fmt.Sprintf("%.2fs", res.DurationSec),
	)
	return res
}

func (r *Runner) tallyFindings(results *RunResults) {
	for _, res := range results.NotebookResults {
		for _, f := range res.Findings {
			switch f.Severity {
			case models.SeverityCritical:
				results.Critical++
			case models.SeverityHigh:
				results.High++
			case models.SeverityMedium:
				results.Medium++
			default:
				results.Low++
			}
		}
	}
}

// createRun inserts a new run into the database.
func (r *Runner) createRun(ctx context.Context, opts *RunOptions, total int) (int64, error) {
	if r.db == nil {
		return 0, nil
	}
	suiteName := ""
	if opts.Suite != nil {
		suiteName = opts.Suite.Name
	}
	path := lifecyclePath(opts)
	key := opts.RunKey
	if key == "" {
		key = fmt.Sprintf("%s:%s:%s:%d", opts.Repo, opts.Branch, path, time.Now().UTC().UnixNano())
	}
	run := &models.Run{
		UniqueKey:      key,
		Repo:           opts.Repo,
		Branch:         opts.Branch,
		Path:           path,
		Suite:          suiteName,
		Status:         "running",
		NotebooksTotal: total,
		StartedAt:      time.Now().UTC(),
	}
	return r.db.Insert(ctx, "runs", run)
}

// lifecyclePath is the path component of a run's finding identity. Repo runs
// key on repo+branch alone; the clone directory changes on every run.
func lifecyclePath(opts *RunOptions) string {
	if opts.Repo != "" {
		return ""
	}
	return opts.Target
}

func (r *Runner) persistNotebookResults(ctx context.Context, runID int64, results *RunResults) {
	if r.db == nil || runID <= 0 || results == nil {
		return
	}
	writeCtx := dbWriteCtx(ctx)

	for _, name := range sortedNotebooks(results.NotebookResults) {
		res := results.NotebookResults[name]
		row := models.NotebookResult{
			RunID:         runID,
			Notebook:      name,
			Status:        res.Status,
			ChecksRun:     res.ChecksRun,
			FindingsCount: len(res.Findings),
			DurationMs:    int64(res.DurationSec * 1000),
			ErrorMsg:      res.Error,
		}
		if _, err := r.db.Insert(writeCtx, "notebook_results", row); err != nil {
			if isContextCanceledErr(err) {
				slog.Info("Skipped notebook result persistence due to cancellation",
					"run_id", runID, "notebook", name)
				continue
			}
			slog.Warn("Failed to persist notebook result",
				"run_id", runID, "notebook", name, "error", err)
		}
	}
}

func (r *Runner) persistFindings(ctx context.Context, runID int64, opts *RunOptions, results *RunResults) *findings.RunDelta {
	if r.db == nil || runID <= 0 {
		return nil
	}
	delta, err := findings.PersistFindings(dbWriteCtx(ctx), r.db, findings.PersistRunOptions{
		RunID:     runID,
		Repo:      opts.Repo,
		Branch:    opts.Branch,
		Path:      lifecyclePath(opts),
		CheckedAt: time.Now().UTC(),
	}, results.AllFindings())
	if err != nil {
		findings.LogPersistError(runID, err)
		return nil
	}
	slog.Info("Finding lifecycle updated", "run_id", runID, "delta", findings.DeltaDebugString(delta))
	return delta
}

// finaliseRun updates the run row after all notebooks complete.
func (r *Runner) finaliseRun(ctx context.Context, runID int64, results *RunResults) {
	if r.db == nil {
		return
	}
	writeCtx := dbWriteCtx(ctx)
	now := time.Now().UTC()

	introduced, resolved, reintroduced := 0, 0, 0
	if results.Delta != nil {
		introduced = results.Delta.IntroducedCount
		resolved = results.Delta.ResolvedCount
		reintroduced = results.Delta.ReintroducedCount
	}

	query := `UPDATE runs SET status = ?, completed_at = ?,
	           notebooks_total = ?, notebooks_failed = ?,
	           findings_critical = ?, findings_high = ?, findings_medium = ?, findings_low = ?,
	           introduced = ?, resolved = ?, reintroduced = ?
	           WHERE id = ?`
	if err := r.db.Exec(writeCtx, query,
		results.Status, now,
		len(results.NotebookResults), results.NotebooksFailed(),
		results.Critical, results.High, results.Medium, results.Low,
		introduced, resolved, reintroduced, runID,
	); err != nil {
		if isContextCanceledErr(err) {
			slog.Info("Skipped final run status update due to cancellation", "run_id", runID)
			return
		}
		slog.Warn("Failed to update run", "run_id", runID, "error", err)
	}
}

// FilterChecks keeps only the checks whose id is in only. An empty filter
// keeps everything.
func FilterChecks(checks []validate.Check, only []string) []validate.Check {
	if len(only) == 0 {
		return checks
	}
	keep := make([]validate.Check, 0, len(checks))
	for _, c := range checks {
		if containsFold(only, c.ID()) {
			keep = append(keep, c)
		}
	}
	return keep
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

func sortedNotebooks(m map[string]*CheckResult) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func dbWriteCtx(ctx context.Context) context.Context {
	if ctx != nil && ctx.Err() == nil {
		return ctx
	}
	return context.Background()
}

func isContextCanceledErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "context canceled")
}
