package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/notebookci/nbcheck/internal/findings"
	"github.com/notebookci/nbcheck/models"
)

// handleImportRun accepts a run pushed by `nbcheck check --report-to` and
// mirrors it into the local database. Lifecycle deltas are recomputed against
// this server's history, so introduced/reintroduced reflect what is new HERE
// rather than on the pushing host.
func (s *Server) handleImportRun(w http.ResponseWriter, r *http.Request) {
	var rep models.RunReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rep.Run.UniqueKey == "" {
		writeError(w, http.StatusBadRequest, "run unique_key is required")
		return
	}

	ctx := r.Context()
	run := rep.Run
	run.ID = 0
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	runID, err := s.db.Insert(ctx, "runs", &run)
	if err != nil {
		if isDuplicateKeyErr(err) {
			writeError(w, http.StatusConflict, "run already imported")
			return
		}
		slog.Warn("Failed to import run", "unique_key", run.UniqueKey, "error", err)
		writeError(w, http.StatusInternalServerError, "insert failed")
		return
	}

	for _, nb := range rep.Notebooks {
		nb.ID = 0
		nb.RunID = runID
		if _, err := s.db.Insert(ctx, "notebook_results", &nb); err != nil {
			slog.Warn("Failed to import notebook result",
				"run_id", runID, "notebook", nb.Notebook, "error", err)
		}
	}

	delta, err := findings.PersistFindings(ctx, s.db, findings.PersistRunOptions{
		RunID:     runID,
		Repo:      run.Repo,
		Branch:    run.Branch,
		Path:      run.Path,
		CheckedAt: run.StartedAt,
	}, rep.Findings)
	if err != nil {
		findings.LogPersistError(runID, err)
	}
	if delta != nil {
		_ = s.db.Exec(ctx,
			`UPDATE runs SET introduced = ?, resolved = ?, reintroduced = ? WHERE id = ?`,
			delta.IntroducedCount, delta.ResolvedCount, delta.ReintroducedCount, runID)
	}

	slog.Info("Run imported",
		"run_id", runID, "repo", run.Repo, "status", run.Status,
		"notebooks", len(rep.Notebooks), "findings", len(rep.Findings))
	s.broadcaster.send(SSEEvent{Type: "run.imported", Payload: map[string]any{
		"id": runID, "repo": run.Repo, "status": run.Status,
	}})

	resp := map[string]any{"id": runID}
	if delta != nil {
		resp["delta"] = delta
	}
	writeJSON(w, http.StatusCreated, resp)
}

// isDuplicateKeyErr matches unique-constraint violations from both backends.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}
