package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/notebookci/nbcheck/models"
)

func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	pg := parsePaginationParams(r, 50, 500)

	var conditions []string
	var args []any
	if v := q.Get("severity"); v != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, strings.ToUpper(v))
	}
	if v := q.Get("kind"); v != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, v)
	}
	if v := q.Get("status"); v != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, v)
	}
	if v := q.Get("repo"); v != "" {
		conditions = append(conditions, "repo = ?")
		args = append(args, v)
	}
	if v := q.Get("run_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			conditions = append(conditions, "run_id = ?")
			args = append(args, id)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count countRow
	if err := s.db.Get(ctx, &count, "SELECT COUNT(*) AS n FROM findings"+where, args...); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	var rows []models.Finding
	query := "SELECT * FROM findings" + where + " ORDER BY id DESC LIMIT ? OFFSET ?"
	if err := s.db.Select(ctx, &rows, query, append(args, pg.PageSize, pg.Offset)...); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rows == nil {
		rows = []models.Finding{}
	}
	writeJSON(w, http.StatusOK, paginationResult[models.Finding]{
		Items:      rows,
		Page:       pg.Page,
		PageSize:   pg.PageSize,
		Total:      count.N,
		TotalPages: totalPages(count.N, pg.PageSize),
	})
}

// handleListLifecycles exposes per-target finding history: when each
// violation first appeared, whether it is still open, and how often it came
// back after being resolved.
func (s *Server) handleListLifecycles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	pg := parsePaginationParams(r, 50, 500)

	var conditions []string
	var args []any
	if v := q.Get("repo"); v != "" {
		conditions = append(conditions, "repo = ?")
		args = append(args, v)
	}
	if v := q.Get("branch"); v != "" {
		conditions = append(conditions, "branch = ?")
		args = append(args, v)
	}
	if v := q.Get("status"); v != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, v)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count countRow
	if err := s.db.Get(ctx, &count, "SELECT COUNT(*) AS n FROM finding_lifecycles"+where, args...); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	var rows []models.FindingLifecycle
	query := "SELECT * FROM finding_lifecycles" + where + " ORDER BY id DESC LIMIT ? OFFSET ?"
	if err := s.db.Select(ctx, &rows, query, append(args, pg.PageSize, pg.Offset)...); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rows == nil {
		rows = []models.FindingLifecycle{}
	}
	writeJSON(w, http.StatusOK, paginationResult[models.FindingLifecycle]{
		Items:      rows,
		Page:       pg.Page,
		PageSize:   pg.PageSize,
		Total:      count.N,
		TotalPages: totalPages(count.N, pg.PageSize),
	})
}
