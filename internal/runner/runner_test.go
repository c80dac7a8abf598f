package runner

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/internal/nbformat"
	"github.com/notebookci/nbcheck/internal/suite"
	"github.com/notebookci/nbcheck/internal/validate"
	"github.com/notebookci/nbcheck/models"
)

const cleanNotebook = `{
 "cells": [
  {"cell_type": "markdown", "metadata": {}, "source": ["# Evaluation\n"]},
  {"cell_type": "code", "execution_count": 4, "metadata": {}, "outputs": [
    {"output_type": "execute_result", "execution_count": 4, "metadata": {}, "data": {"text/plain": ["0.98"]}}
  ], "source": ["trainer.test_minibatch(test_minibatch_data)"]}
 ],
 "metadata": {"kernelspec": {"name": "python3", "display_name": "Python 3"}, "language_info": {"name": "python"}},
 "nbformat": 4,
 "nbformat_minor": 2
}`

const regressedNotebook = `{
 "cells": [
  {"cell_type": "code", "execution_count": 7, "metadata": {}, "outputs": [
    {"output_type": "execute_result", "execution_count": 7, "metadata": {}, "data": {"text/plain": ["0.95"]}}
  ], "source": ["trainer.test_minibatch(test_minibatch_data)"]},
  {"cell_type": "code", "execution_count": 8, "metadata": {}, "outputs": [
    {"output_type": "error", "ename": "ZeroDivisionError", "evalue": "division by zero", "traceback": ["ZeroDivisionError"]}
  ], "source": ["ratio = wins / losses"]}
 ],
 "metadata": {"kernelspec": {"name": "python3"}, "language_info": {"name": "python"}},
 "nbformat": 4,
 "nbformat_minor": 2
}`

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("clean.ipynb", cleanNotebook)
	write("training/regressed.ipynb", regressedNotebook)
	write("broken.ipynb", "{")
	write(".ipynb_checkpoints/clean-checkpoint.ipynb", cleanNotebook)
	write("README.md", "# fixtures")
	return dir
}

func evalChecks() []validate.Check {
	return []validate.Check{
		&validate.NoErrorOutputsCheck{CheckID: "no-errors"},
		&validate.OutputValueCheck{
			CheckID: "eval-output",
			Pattern: regexp.MustCompile(`trainer\.test_minibatch`),
			Accept:  []string{"0.98", "0.99"},
		},
	}
}

func newTestDB(t *testing.T) database.DB {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "runner-test.db")})
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestRunnerPersistsRun(t *testing.T) {
	dir := writeTree(t)
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	results, err := NewRunner(evalChecks(), db).Run(ctx, &RunOptions{
		Target: dir,
		Repo:   "acme/notebooks",
		Branch: "main",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if results.Status != "partial" {
		t.Errorf("status = %q, want partial (broken.ipynb cannot load)", results.Status)
	}
	if results.RunID <= 0 {
		t.Fatalf("run id = %d", results.RunID)
	}
	if len(results.NotebookResults) != 3 {
		t.Fatalf("expected 3 notebooks (checkpoint dir skipped), got %d: %v",
			len(results.NotebookResults), sortedNotebooks(results.NotebookResults))
	}

	clean := results.NotebookResults["clean.ipynb"]
	if clean.Status != "passed" || clean.ChecksRun != 2 || len(clean.Findings) != 0 {
		t.Errorf("clean.ipynb: %+v", clean)
	}
	regressed := results.NotebookResults["training/regressed.ipynb"]
	if regressed.Status != "failed" || len(regressed.Findings) != 2 {
		t.Errorf("regressed.ipynb: status=%q findings=%d", regressed.Status, len(regressed.Findings))
	}
	broken := results.NotebookResults["broken.ipynb"]
	if broken.Status != "error" || broken.Error == "" {
		t.Errorf("broken.ipynb: %+v", broken)
	}

	if results.Critical != 1 || results.High != 1 || results.FindingsTotal() != 2 {
		t.Errorf("severity totals: critical=%d high=%d total=%d", results.Critical, results.High, results.FindingsTotal())
	}
	if results.NotebooksFailed() != 2 {
		t.Errorf("notebooks failed = %d, want 2", results.NotebooksFailed())
	}
	if results.Delta == nil || results.Delta.IntroducedCount != 2 {
		t.Errorf("delta: %+v", results.Delta)
	}

	var run models.Run
	if err := db.Get(ctx, &run, `SELECT * FROM runs WHERE id = ?`, results.RunID); err != nil {
		t.Fatalf("load run row: %v", err)
	}
	if run.Status != "partial" || run.NotebooksTotal != 3 || run.NotebooksFailed != 2 {
		t.Errorf("run row: %+v", run)
	}
	if run.FindingsCritical != 1 || run.FindingsHigh != 1 || run.Introduced != 2 {
		t.Errorf("run row counts: %+v", run)
	}
	if run.CompletedAt == nil {
		t.Errorf("run row missing completed_at")
	}
	if run.Suite != "" || run.Repo != "acme/notebooks" {
		t.Errorf("run row identity: suite=%q repo=%q", run.Suite, run.Repo)
	}

	if n := countWhere(t, db, "notebook_results", "run_id", results.RunID); n != 3 {
		t.Errorf("notebook_results rows = %d", n)
	}
	if n := countWhere(t, db, "findings", "run_id", results.RunID); n != 2 {
		t.Errorf("findings rows = %d", n)
	}
}

func TestRunnerParallelMatchesSequential(t *testing.T) {
	dir := writeTree(t)
	ctx := context.Background()

	seq, err := NewRunner(evalChecks(), nil).Run(ctx, &RunOptions{Target: dir})
	if err != nil {
		t.Fatalf("sequential run: %v", err)
	}
	par, err := NewRunner(evalChecks(), nil).Run(ctx, &RunOptions{Target: dir, Parallel: true, Workers: 2})
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}

	if par.RunID != 0 {
		t.Errorf("run id without database = %d, want 0", par.RunID)
	}
	if par.Status != seq.Status {
		t.Errorf("status: parallel %q vs sequential %q", par.Status, seq.Status)
	}
	if len(par.NotebookResults) != len(seq.NotebookResults) {
		t.Fatalf("result counts differ: %d vs %d", len(par.NotebookResults), len(seq.NotebookResults))
	}
	for name, want := range seq.NotebookResults {
		got := par.NotebookResults[name]
		if got == nil {
			t.Fatalf("parallel run missing %s", name)
		}
		if got.Status != want.Status || len(got.Findings) != len(want.Findings) {
			t.Errorf("%s: parallel %s/%d vs sequential %s/%d",
				name, got.Status, len(got.Findings), want.Status, len(want.Findings))
		}
	}
}

type cancellingCheck struct {
	cancel context.CancelFunc
}

func (c *cancellingCheck) ID() string       { return "cancel" }
func (c *cancellingCheck) Kind() string     { return "cancel" }
func (c *cancellingCheck) Describe() string { return "cancels the run context" }

func (c *cancellingCheck) Run(nb *nbformat.Notebook) error {
	c.cancel()
	return nil
}

func TestRunnerParallelKeepsResultsAfterCancel(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clean.ipynb"), []byte(cleanNotebook), 0o644); err != nil {
		t.Fatal(err)
	}

	// The check cancels the context mid-run; a completed result must still
	// be collected, not raced against Done. Repeat to shake out scheduling.
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		r := NewRunner([]validate.Check{&cancellingCheck{cancel: cancel}}, nil)
		out := r.runParallel(ctx, &RunOptions{Parallel: true, Workers: 1}, dir, []string{"clean.ipynb"})
		cancel()
		res := out["clean.ipynb"]
		if res == nil {
			t.Fatalf("completed result dropped after cancellation (iteration %d)", i)
		}
		if res.ChecksRun != 1 {
			t.Fatalf("checks run = %d, want 1", res.ChecksRun)
		}
	}
}

func TestRunnerRequiresChecks(t *testing.T) {
	dir := writeTree(t)
	if _, err := NewRunner(nil, nil).Run(context.Background(), &RunOptions{Target: dir}); err == nil {
		t.Fatalf("expected error for empty check set")
	}
}

func TestDiscoverNotebooks(t *testing.T) {
	dir := writeTree(t)

	root, nbs, err := DiscoverNotebooks(dir, nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if root != dir {
		t.Errorf("root = %q", root)
	}
	want := []string{"broken.ipynb", "clean.ipynb", "training/regressed.ipynb"}
	if len(nbs) != len(want) {
		t.Fatalf("notebooks = %v, want %v", nbs, want)
	}
	for i := range want {
		if nbs[i] != want[i] {
			t.Fatalf("notebooks = %v, want %v", nbs, want)
		}
	}

	st := &suite.Suite{Notebooks: []string{"training/*.ipynb"}}
	_, filtered, err := DiscoverNotebooks(dir, st)
	if err != nil {
		t.Fatalf("discover with globs: %v", err)
	}
	if len(filtered) != 1 || filtered[0] != "training/regressed.ipynb" {
		t.Errorf("filtered = %v", filtered)
	}

	single := filepath.Join(dir, "clean.ipynb")
	fileRoot, fileNbs, err := DiscoverNotebooks(single, st)
	if err != nil {
		t.Fatalf("discover single file: %v", err)
	}
	if fileRoot != dir || len(fileNbs) != 1 || fileNbs[0] != "clean.ipynb" {
		t.Errorf("single file discovery: root=%q nbs=%v", fileRoot, fileNbs)
	}

	if _, _, err := DiscoverNotebooks(filepath.Join(dir, "README.md"), nil); err == nil {
		t.Errorf("expected error for non-notebook target")
	}
}

func TestFilterChecks(t *testing.T) {
	checks := evalChecks()

	if got := FilterChecks(checks, nil); len(got) != 2 {
		t.Errorf("empty filter should keep all checks, got %d", len(got))
	}
	got := FilterChecks(checks, []string{"Eval-Output"})
	if len(got) != 1 || got[0].ID() != "eval-output" {
		t.Errorf("filtered = %v", got)
	}
	if got := FilterChecks(checks, []string{"nope"}); len(got) != 0 {
		t.Errorf("unknown id should select nothing, got %d", len(got))
	}
}

type countRow struct {
	N int `db:"n"`
}

func countWhere(t *testing.T, db database.DB, table, col string, id int64) int {
	t.Helper()
	var row countRow
	if err := db.Get(context.Background(), &row, "SELECT COUNT(*) AS n FROM "+table+" WHERE "+col+" = ?", id); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return row.N
}
