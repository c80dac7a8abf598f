package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/models"
)

func TestHandleDeleteRunDeletesRelatedRecords(t *testing.T) {
	srv, db := newTestServer(t, &config.Config{})
	defer db.Close()
	seedRunGraph(t, db, 101)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/runs/101", nil)
	buildHandler(srv).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp deleteRunsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DeletedCount != 1 || len(resp.DeletedIDs) != 1 || resp.DeletedIDs[0] != 101 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	for _, table := range []string{"runs", "notebook_results", "findings"} {
		if n := countByRunID(t, db, table, 101); n != 0 {
			t.Fatalf("expected %s rows for run 101 to be deleted, found %d", table, n)
		}
	}
	// Lifecycle history is keyed by target, not run, and survives per-run deletes.
	if n := countAllRows(t, db, "finding_lifecycles"); n != 1 {
		t.Fatalf("expected lifecycle history to survive, found %d rows", n)
	}
}

func TestHandleDeleteRunsBulkReportsNotFound(t *testing.T) {
	srv, db := newTestServer(t, &config.Config{})
	defer db.Close()
	seedRunGraph(t, db, 201)
	seedRunGraph(t, db, 202)

	rr := httptest.NewRecorder()
	body := `{"ids":[201,999,201]}`
	req := httptest.NewRequest(http.MethodDelete, "/api/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	buildHandler(srv).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp deleteRunsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DeletedCount != 1 {
		t.Fatalf("expected 1 deleted, got %+v", resp)
	}
	if len(resp.DeletedIDs) != 1 || resp.DeletedIDs[0] != 201 {
		t.Fatalf("unexpected deleted ids: %+v", resp.DeletedIDs)
	}
	if len(resp.NotFoundIDs) != 1 || resp.NotFoundIDs[0] != 999 {
		t.Fatalf("unexpected not found ids: %+v", resp.NotFoundIDs)
	}
	if n := countByRunID(t, db, "runs", 201); n != 0 {
		t.Fatalf("run 201 should be deleted")
	}
	if n := countByRunID(t, db, "runs", 202); n != 1 {
		t.Fatalf("run 202 should remain, count=%d", n)
	}
}

func TestHandleDeleteRunsDeleteAllRequiresExplicitFlag(t *testing.T) {
	srv, db := newTestServer(t, &config.Config{})
	defer db.Close()
	seedRunGraph(t, db, 301)
	seedRunGraph(t, db, 302)

	handler := buildHandler(srv)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/runs", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for ambiguous delete-all, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/runs", bytes.NewBufferString(`{"delete_all":true}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for delete_all, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp deleteRunsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.DeleteAll || resp.DeletedCount != 2 {
		t.Fatalf("unexpected delete_all response: %+v", resp)
	}

	for _, table := range []string{"runs", "notebook_results", "findings", "finding_lifecycles"} {
		if n := countAllRows(t, db, table); n != 0 {
			t.Fatalf("expected %s to be empty after delete_all, found %d", table, n)
		}
	}
}

func TestHandleImportRun(t *testing.T) {
	srv, db := newTestServer(t, &config.Config{})
	defer db.Close()
	handler := buildHandler(srv)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := models.RunReport{
		Run: models.Run{
			UniqueKey:        "acme/notebooks:main::1",
			Repo:             "acme/notebooks",
			Branch:           "main",
			Status:           "completed",
			NotebooksTotal:   2,
			NotebooksFailed:  1,
			FindingsCritical: 1,
			StartedAt:        ts,
		},
		Notebooks: []models.NotebookResult{
			{Notebook: "clean.ipynb", Status: "passed", ChecksRun: 2},
			{Notebook: "broken.ipynb", Status: "failed", ChecksRun: 2, FindingsCount: 1},
		},
		Findings: []models.Finding{
			{
				Repo: "acme/notebooks", Notebook: "broken.ipynb",
				CheckID: "no-errors", Kind: "error_outputs",
				Severity: models.SeverityCritical, Message: "ZeroDivisionError",
				Fingerprint: "abc123", Status: "open",
			},
		},
	}
	body, _ := json.Marshal(report)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/runs/import", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID <= 0 {
		t.Fatalf("expected a positive run id, got %d", resp.ID)
	}
	if n := countByRunID(t, db, "notebook_results", resp.ID); n != 2 {
		t.Fatalf("expected 2 notebook results, found %d", n)
	}
	if n := countByRunID(t, db, "findings", resp.ID); n != 1 {
		t.Fatalf("expected 1 finding, found %d", n)
	}
	// Lifecycle reconciliation runs against this server's history.
	if n := countAllRows(t, db, "finding_lifecycles"); n != 1 {
		t.Fatalf("expected 1 lifecycle row, found %d", n)
	}
	var run models.Run
	if err := db.Get(context.Background(), &run, `SELECT * FROM runs WHERE id = ?`, resp.ID); err != nil {
		t.Fatalf("load imported run: %v", err)
	}
	if run.Introduced != 1 {
		t.Errorf("Introduced = %d, want 1 (recomputed against local history)", run.Introduced)
	}

	// Pushing the same run twice is rejected.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/runs/import", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate import, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireTokenGuardsMutatingEndpoints(t *testing.T) {
	srv, db := newTestServer(t, &config.Config{
		Server: config.ServerConfig{Token: "sekret"},
	})
	defer db.Close()
	seedRunGraph(t, db, 401)
	handler := buildHandler(srv)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/runs/401", nil)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	// Reads stay open.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for unauthenticated read, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/runs/401", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleCreateScheduleValidatesCron(t *testing.T) {
	srv, db := newTestServer(t, &config.Config{})
	defer db.Close()
	handler := buildHandler(srv)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/schedules",
		strings.NewReader(`{"repo":"acme/notebooks","cron_expr":"not a cron"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid cron, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/schedules",
		strings.NewReader(`{"repo":"acme/notebooks","branch":"main","cron_expr":"@daily","enabled":true}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var sched models.Schedule
	if err := json.NewDecoder(rr.Body).Decode(&sched); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if sched.ID <= 0 || sched.CronExpr != "@daily" {
		t.Fatalf("unexpected schedule: %+v", sched)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/schedules", nil)
	handler.ServeHTTP(rr, req)
	var listed []models.Schedule
	if err := json.NewDecoder(rr.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].Repo != "acme/notebooks" {
		t.Fatalf("unexpected schedules list: %+v", listed)
	}
}

func TestHandleStats(t *testing.T) {
	srv, db := newTestServer(t, &config.Config{})
	defer db.Close()
	seedRunGraph(t, db, 501)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	buildHandler(srv).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var stats statsResponse
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalRuns != 1 || stats.Completed != 1 || stats.Critical != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.OpenFindings != 1 {
		t.Fatalf("OpenFindings = %d, want 1", stats.OpenFindings)
	}
}

// --- helpers ---

func newTestServer(t *testing.T, cfg *config.Config) (*Server, database.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "server-test.db")
	db, err := database.NewSQLite(config.DatabaseConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("new sqlite db: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return New(cfg, db), db
}

// seedRunGraph inserts one completed run with a notebook result, a finding,
// and an open lifecycle row.
func seedRunGraph(t *testing.T, db database.DB, runID int64) {
	t.Helper()
	ctx := context.Background()
	ts := time.Now().UTC()

	mustExec(t, db, ctx, `INSERT INTO runs (
		id, unique_key, repo, branch, status, notebooks_total, notebooks_failed,
		findings_critical, started_at
	) VALUES (?, ?, 'acme/notebooks', 'main', 'completed', 1, 1, 1, ?)`,
		runID, "run-"+itoa(runID), ts,
	)
	mustExec(t, db, ctx, `INSERT INTO notebook_results (
		run_id, notebook, status, checks_run, findings_count
	) VALUES (?, 'model.ipynb', 'failed', 2, 1)`, runID)
	mustExec(t, db, ctx, `INSERT INTO findings (
		run_id, repo, notebook, check_id, kind, severity, fingerprint, status,
		first_seen_at, last_seen_at
	) VALUES (?, 'acme/notebooks', 'model.ipynb', 'no-errors', 'error_outputs',
		'CRITICAL', ?, 'open', ?, ?)`,
		runID, "fp-"+itoa(runID), ts, ts,
	)
	mustExec(t, db, ctx, `INSERT INTO finding_lifecycles (
		repo, branch, path, notebook, check_id, kind, fingerprint, status,
		severity, total_seen_count, first_seen_run_id, last_seen_run_id,
		first_seen_at, last_seen_at
	) VALUES ('acme/notebooks', 'main', '', 'model.ipynb', 'no-errors',
		'error_outputs', ?, 'open', 'CRITICAL', 1, ?, ?, ?, ?)`,
		"fp-"+itoa(runID), runID, runID, ts, ts,
	)
}

func mustExec(t *testing.T, db database.DB, ctx context.Context, query string, args ...any) {
	t.Helper()
	if err := db.Exec(ctx, query, args...); err != nil {
		t.Fatalf("exec failed: %v\nquery: %s", err, query)
	}
}

func countByRunID(t *testing.T, db database.DB, table string, runID int64) int {
	t.Helper()
	var row countRow
	query := "SELECT COUNT(*) AS n FROM " + table + " WHERE run_id = ?"
	if table == "runs" {
		query = "SELECT COUNT(*) AS n FROM runs WHERE id = ?"
	}
	if err := db.Get(context.Background(), &row, query, runID); err != nil {
		t.Fatalf("count %s by run id: %v", table, err)
	}
	return row.N
}

func countAllRows(t *testing.T, db database.DB, table string) int {
	t.Helper()
	var row countRow
	if err := db.Get(context.Background(), &row, "SELECT COUNT(*) AS n FROM "+table); err != nil {
		t.Fatalf("count all %s: %v", table, err)
	}
	return row.N
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
