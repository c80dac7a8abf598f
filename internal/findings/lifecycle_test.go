package findings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/internal/validate"
	"github.com/notebookci/nbcheck/models"
)

func errorOutputsFailure() *validate.Failure {
	return &validate.Failure{
		Kind: validate.KindErrorOutputs,
		ErrorOutputs: []validate.ErrorOutputRef{
			{CellIndex: 2, OutputIndex: 0, Ename: "ZeroDivisionError", Evalue: "division by zero"},
			{CellIndex: 5, OutputIndex: 1, Ename: "NameError", Evalue: "name 'x' is not defined"},
		},
	}
}

func mismatchFailure(actual string) *validate.Failure {
	return &validate.Failure{
		Kind:      validate.KindValueMismatch,
		Pattern:   `trainer\.test_minibatch`,
		CellIndex: 7,
		Actual:    actual,
		Accepted:  []string{"0.98", "0.99"},
	}
}

func TestFromFailureErrorOutputs(t *testing.T) {
	found := FromFailure("acme/notebooks", "Tutorials/eval.ipynb", "no-errors", errorOutputsFailure())
	if len(found) != 2 {
		t.Fatalf("expected one finding per error output, got %d", len(found))
	}
	first := found[0]
	if first.Kind != string(validate.KindErrorOutputs) {
		t.Errorf("kind = %q", first.Kind)
	}
	if first.Severity != models.SeverityCritical {
		t.Errorf("severity = %q, want CRITICAL", first.Severity)
	}
	if first.CellIndex != 2 || first.OutputIndex != 0 {
		t.Errorf("location = cell %d output %d", first.CellIndex, first.OutputIndex)
	}
	if first.Fingerprint == "" || first.Fingerprint == found[1].Fingerprint {
		t.Errorf("fingerprints should be distinct and non-empty: %q vs %q", first.Fingerprint, found[1].Fingerprint)
	}

	// The same exception moving to another cell keeps its identity.
	moved := errorOutputsFailure()
	moved.ErrorOutputs[0].CellIndex = 9
	again := FromFailure("acme/notebooks", "Tutorials/eval.ipynb", "no-errors", moved)
	if again[0].Fingerprint != first.Fingerprint {
		t.Errorf("fingerprint changed with cell index: %q vs %q", again[0].Fingerprint, first.Fingerprint)
	}
}

func TestDedupCollapsesRepeatedErrors(t *testing.T) {
	repeated := &validate.Failure{
		Kind: validate.KindErrorOutputs,
		ErrorOutputs: []validate.ErrorOutputRef{
			{CellIndex: 2, OutputIndex: 0, Ename: "ZeroDivisionError", Evalue: "division by zero"},
			{CellIndex: 6, OutputIndex: 0, Ename: "ZeroDivisionError", Evalue: "division by zero"},
		},
	}
	found := FromFailure("acme/notebooks", "Tutorials/eval.ipynb", "no-errors", repeated)
	if len(found) != 2 {
		t.Fatalf("expected one finding per occurrence, got %d", len(found))
	}
	if found[0].Fingerprint != found[1].Fingerprint {
		t.Fatalf("identical errors should share a fingerprint: %q vs %q",
			found[0].Fingerprint, found[1].Fingerprint)
	}

	// Only the first occurrence is persisted; its location wins.
	kept := Dedup(found)
	if len(kept) != 1 {
		t.Fatalf("Dedup kept %d findings, want 1", len(kept))
	}
	if kept[0].CellIndex != 2 || kept[0].OutputIndex != 0 {
		t.Errorf("kept location = cell %d output %d, want first occurrence", kept[0].CellIndex, kept[0].OutputIndex)
	}
}

func TestFromFailureValueMismatch(t *testing.T) {
	found := FromFailure("acme/notebooks", "Tutorials/eval.ipynb", "eval-output", mismatchFailure("0.95"))
	if len(found) != 1 {
		t.Fatalf("expected one finding, got %d", len(found))
	}
	f := found[0]
	if f.Severity != models.SeverityHigh {
		t.Errorf("severity = %q, want HIGH", f.Severity)
	}
	if f.Actual != "0.95" {
		t.Errorf("actual = %q", f.Actual)
	}
	if f.Expected != `["0.98","0.99"]` {
		t.Errorf("expected = %q", f.Expected)
	}
	if f.CellIndex != 7 {
		t.Errorf("cell index = %d", f.CellIndex)
	}

	other := FromFailure("acme/notebooks", "Tutorials/eval.ipynb", "eval-output", mismatchFailure("0.50"))
	if other[0].Fingerprint == f.Fingerprint {
		t.Errorf("different actual values should not share a fingerprint")
	}
}

func TestFromFailureCardinality(t *testing.T) {
	failure := &validate.Failure{
		Kind:    validate.KindCellCardinality,
		Pattern: `trainer\.test_minibatch`,
	}
	found := FromFailure("acme/notebooks", "Tutorials/eval.ipynb", "eval-output", failure)
	if len(found) != 1 {
		t.Fatalf("expected one finding, got %d", len(found))
	}
	if found[0].Severity != models.SeverityMedium {
		t.Errorf("severity = %q, want MEDIUM", found[0].Severity)
	}
	if found[0].Message == "" || found[0].Fingerprint == "" {
		t.Errorf("cardinality finding missing message or fingerprint: %+v", found[0])
	}
}

func TestDedupCollapsesByIdentity(t *testing.T) {
	a := FromFailure("acme/notebooks", "a.ipynb", "no-errors", errorOutputsFailure())
	dup := append(append([]models.Finding{}, a...), a...)
	dup = append(dup, models.Finding{Kind: "value_mismatch"}) // no fingerprint, dropped

	out := Dedup(dup)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique findings, got %d", len(out))
	}
}

func TestPersistFindingsLifecycle(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	opts := func(runID int64, at time.Time) PersistRunOptions {
		return PersistRunOptions{RunID: runID, Repo: "acme/notebooks", Branch: "main", Path: ".", CheckedAt: at}
	}
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	errFindings := FromFailure("acme/notebooks", "Tutorials/eval.ipynb", "no-errors", errorOutputsFailure())[:1]
	valFindings := FromFailure("acme/notebooks", "Tutorials/eval.ipynb", "eval-output", mismatchFailure("0.95"))

	// Run 1: both findings are new.
	delta, err := PersistFindings(ctx, db, opts(1, t0), append(append([]models.Finding{}, errFindings...), valFindings...))
	if err != nil {
		t.Fatalf("persist run 1: %v", err)
	}
	if delta.PresentCount != 2 || delta.IntroducedCount != 2 || delta.ResolvedCount != 0 || delta.ReintroducedCount != 0 {
		t.Fatalf("run 1 delta: %s", DeltaDebugString(delta))
	}
	if n := countWhere(t, db, "finding_lifecycles", "status = 'open'"); n != 2 {
		t.Fatalf("expected 2 open lifecycles, got %d", n)
	}
	if n := countWhere(t, db, "findings", "run_id = 1 AND introduced = 1"); n != 2 {
		t.Fatalf("expected 2 introduced snapshot rows, got %d", n)
	}

	// Run 2: the error output is gone, the mismatch persists.
	delta, err = PersistFindings(ctx, db, opts(2, t0.Add(time.Hour)), valFindings)
	if err != nil {
		t.Fatalf("persist run 2: %v", err)
	}
	if delta.PresentCount != 1 || delta.IntroducedCount != 0 || delta.ResolvedCount != 1 || delta.ReintroducedCount != 0 {
		t.Fatalf("run 2 delta: %s", DeltaDebugString(delta))
	}
	resolved := lifecycleFor(t, db, errFindings[0].Fingerprint)
	if resolved.Status != "resolved" {
		t.Errorf("error lifecycle status = %q", resolved.Status)
	}
	if resolved.ResolvedAtRunID == nil || *resolved.ResolvedAtRunID != 2 {
		t.Errorf("resolved_at_run_id = %v, want 2", resolved.ResolvedAtRunID)
	}
	still := lifecycleFor(t, db, valFindings[0].Fingerprint)
	if still.Status != "open" || still.TotalSeenCount != 2 || still.LastSeenRunID != 2 {
		t.Errorf("mismatch lifecycle after run 2: %+v", still)
	}

	// Run 3: the error output comes back.
	delta, err = PersistFindings(ctx, db, opts(3, t0.Add(2*time.Hour)), append(append([]models.Finding{}, errFindings...), valFindings...))
	if err != nil {
		t.Fatalf("persist run 3: %v", err)
	}
	if delta.ReintroducedCount != 1 || delta.ResolvedCount != 0 {
		t.Fatalf("run 3 delta: %s", DeltaDebugString(delta))
	}
	back := lifecycleFor(t, db, errFindings[0].Fingerprint)
	if back.Status != "open" || back.ReintroducedCount != 1 || back.ResolvedAtRunID != nil {
		t.Errorf("reintroduced lifecycle: %+v", back)
	}
	if n := countWhere(t, db, "findings", "run_id = 3 AND reintroduced = 1"); n != 1 {
		t.Fatalf("expected 1 reintroduced snapshot row, got %d", n)
	}

	// Persisting run 3 again replaces its snapshot instead of duplicating it.
	delta, err = PersistFindings(ctx, db, opts(3, t0.Add(2*time.Hour)), append(append([]models.Finding{}, errFindings...), valFindings...))
	if err != nil {
		t.Fatalf("re-persist run 3: %v", err)
	}
	if delta.IntroducedCount != 0 || delta.ResolvedCount != 0 || delta.ReintroducedCount != 0 {
		t.Fatalf("re-persist delta: %s", DeltaDebugString(delta))
	}
	if n := countWhere(t, db, "findings", "run_id = 3"); n != 2 {
		t.Fatalf("expected snapshot replaced with 2 rows, got %d", n)
	}
}

func TestIsNoSuchTableError(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	err := db.Exec(context.Background(), `SELECT 1 FROM does_not_exist`)
	if !IsNoSuchTableError(err) {
		t.Errorf("expected missing-table error, got %v", err)
	}
	if IsNoSuchTableError(nil) {
		t.Errorf("nil is not a missing-table error")
	}
}

func newTestDB(t *testing.T) database.DB {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "findings-test.db")})
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

type countRow struct {
	N int `db:"n"`
}

func countWhere(t *testing.T, db database.DB, table, where string) int {
	t.Helper()
	var row countRow
	if err := db.Get(context.Background(), &row, "SELECT COUNT(*) AS n FROM "+table+" WHERE "+where); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return row.N
}

func lifecycleFor(t *testing.T, db database.DB, fingerprint string) models.FindingLifecycle {
	t.Helper()
	var rows []models.FindingLifecycle
	if err := db.Select(context.Background(), &rows, `SELECT * FROM finding_lifecycles WHERE fingerprint = ?`, fingerprint); err != nil {
		t.Fatalf("select lifecycle: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one lifecycle for %s, got %d", fingerprint, len(rows))
	}
	return rows[0]
}
