package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/notebookci/nbcheck/models"
)

type deleteRunsRequest struct {
	IDs       []int64 `json:"ids"`
	DeleteAll bool    `json:"delete_all"`
}

type deleteRunsResponse struct {
	DeletedCount int     `json:"deleted_count"`
	DeletedIDs   []int64 `json:"deleted_ids"`
	NotFoundIDs  []int64 `json:"not_found_ids"`
	DeleteAll    bool    `json:"delete_all,omitempty"`
}

// --- Run list/query handlers ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	pg := parsePaginationParams(r, 20, 200)

	var conditions []string
	var args []any
	if v := q.Get("status"); v != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, v)
	}
	if v := q.Get("repo"); v != "" {
		conditions = append(conditions, "repo = ?")
		args = append(args, v)
	}
	if v := q.Get("branch"); v != "" {
		conditions = append(conditions, "branch = ?")
		args = append(args, v)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count countRow
	if err := s.db.Get(ctx, &count, "SELECT COUNT(*) AS n FROM runs"+where, args...); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	var runs []models.Run
	query := "SELECT * FROM runs" + where + " ORDER BY id DESC LIMIT ? OFFSET ?"
	if err := s.db.Select(ctx, &runs, query, append(args, pg.PageSize, pg.Offset)...); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	writeJSON(w, http.StatusOK, paginationResult[models.Run]{
		Items:      runs,
		Page:       pg.Page,
		PageSize:   pg.PageSize,
		Total:      count.N,
		TotalPages: totalPages(count.N, pg.PageSize),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()

	var run models.Run
	if err := s.db.Get(ctx, &run, `SELECT * FROM runs WHERE id = ?`, id); err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	var notebooks []models.NotebookResult
	_ = s.db.Select(ctx, &notebooks,
		`SELECT * FROM notebook_results WHERE run_id = ? ORDER BY notebook`, id)
	if notebooks == nil {
		notebooks = []models.NotebookResult{}
	}

	var found []models.Finding
	_ = s.db.Select(ctx, &found,
		`SELECT * FROM findings WHERE run_id = ? ORDER BY id`, id)
	if found == nil {
		found = []models.Finding{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":       run,
		"notebooks": notebooks,
		"findings":  found,
	})
}

// --- Delete handlers ---

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be positive")
		return
	}

	existing, err := s.existingRunIDs(r.Context(), []int64{id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if len(existing) == 0 {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err := s.deleteRunsByIDs(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	s.broadcaster.send(SSEEvent{Type: "run.deleted", Payload: map[string]any{"id": id}})
	writeJSON(w, http.StatusOK, deleteRunsResponse{
		DeletedCount: 1,
		DeletedIDs:   existing,
		NotFoundIDs:  []int64{},
	})
}

func (s *Server) handleDeleteRuns(w http.ResponseWriter, r *http.Request) {
	var req deleteRunsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DeleteAll {
		ids, err := s.listAllRunIDs(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		if err := s.deleteAllRuns(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		s.broadcaster.send(SSEEvent{Type: "run.deleted", Payload: map[string]any{"all": true}})
		writeJSON(w, http.StatusOK, deleteRunsResponse{
			DeletedCount: len(ids),
			DeletedIDs:   ids,
			NotFoundIDs:  []int64{},
			DeleteAll:    true,
		})
		return
	}

	ids, err := normalizeDeleteIDs(req.IDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "provide ids or set delete_all=true")
		return
	}

	existing, err := s.existingRunIDs(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	notFound := diffInt64(ids, existing)
	if len(existing) > 0 {
		if err := s.deleteRunsByIDs(r.Context(), existing); err != nil {
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		s.broadcaster.send(SSEEvent{Type: "run.deleted", Payload: map[string]any{"ids": existing}})
	}
	writeJSON(w, http.StatusOK, deleteRunsResponse{
		DeletedCount: len(existing),
		DeletedIDs:   existing,
		NotFoundIDs:  notFound,
	})
}

// --- DB helpers ---

func (s *Server) listAllRunIDs(ctx context.Context) ([]int64, error) {
	type row struct {
		ID int64 `db:"id"`
	}
	var rows []row
	if err := s.db.Select(ctx, &rows, `SELECT id FROM runs ORDER BY id ASC`); err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out, nil
}

func (s *Server) existingRunIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	type row struct {
		ID int64 `db:"id"`
	}
	query := fmt.Sprintf("SELECT id FROM runs WHERE id IN (%s)", placeholders(len(ids)))
	var rows []row
	if err := s.db.Select(ctx, &rows, query, toAnyArgs(ids)...); err != nil {
		return nil, err
	}
	found := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		found[r.ID] = struct{}{}
	}
	ordered := make([]int64, 0, len(rows))
	for _, id := range ids {
		if _, ok := found[id]; ok {
			ordered = append(ordered, id)
		}
	}
	return ordered, nil
}

// deleteRunsByIDs removes the runs and their dependent rows. Lifecycle
// history is keyed by target, not run, so it survives per-run deletes.
func (s *Server) deleteRunsByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := toAnyArgs(ids)
	where := fmt.Sprintf(" WHERE run_id IN (%s)", placeholders(len(ids)))
	for _, table := range []string{"findings", "notebook_results"} {
		if err := s.db.Exec(ctx, "DELETE FROM "+table+where, args...); err != nil {
			return err
		}
	}
	runWhere := fmt.Sprintf(" WHERE id IN (%s)", placeholders(len(ids)))
	return s.db.Exec(ctx, "DELETE FROM runs"+runWhere, args...)
}

func (s *Server) deleteAllRuns(ctx context.Context) error {
	for _, table := range []string{
		"findings",
		"notebook_results",
		"finding_lifecycles",
		"runs",
	} {
		if err := s.db.Exec(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
