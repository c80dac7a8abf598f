package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/notebookci/nbcheck/internal/notify"
)

// buildHandler wires all REST and SSE routes onto a new ServeMux.
// Uses Go 1.22+ method-prefixed patterns ("GET /path", "POST /path").
func buildHandler(s *Server) http.Handler {
	mux := http.NewServeMux()

	// Root/help
	mux.HandleFunc("GET /", s.handleRoot)

	// Health / stats
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	// Runs
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("DELETE /api/runs", s.requireToken(s.handleDeleteRuns))
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.requireToken(s.handleDeleteRun))
	mux.HandleFunc("POST /api/runs/import", s.requireToken(s.handleImportRun))

	// Findings
	mux.HandleFunc("GET /api/findings", s.handleListFindings)
	mux.HandleFunc("GET /api/findings/lifecycles", s.handleListLifecycles)

	// Schedule management
	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", s.requireToken(s.handleCreateSchedule))
	mux.HandleFunc("PUT /api/schedules/{id}", s.requireToken(s.handleUpdateSchedule))
	mux.HandleFunc("DELETE /api/schedules/{id}", s.requireToken(s.handleDeleteSchedule))
	mux.HandleFunc("POST /api/schedules/{id}/trigger", s.requireToken(s.handleTriggerSchedule))

	// Notifications
	mux.HandleFunc("POST /api/notify/test", s.requireToken(s.handleNotifyTest))

	// Server-Sent Events stream
	mux.HandleFunc("GET /events", s.handleEvents)

	return mux
}

// requireToken rejects the request unless it carries the configured bearer
// token. With no token configured every request passes; `serve` binds to
// localhost by default.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := s.cfg.Server.Token; token != "" {
			if r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
		}
		next(w, r)
	}
}

// --- Root / health / stats handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "nbcheck server",
		"status":  "running",
		"message": "Notebook check history API. See /api/runs, /api/findings, /api/schedules.",
	})
}

// statsResponse aggregates run history for dashboards.
type statsResponse struct {
	TotalRuns    int `db:"total_runs"    json:"total_runs"`
	Completed    int `db:"completed"     json:"completed"`
	Partial      int `db:"partial"       json:"partial"`
	Failed       int `db:"failed"        json:"failed"`
	Critical     int `db:"critical"      json:"critical"`
	High         int `db:"high"          json:"high"`
	Medium       int `db:"medium"        json:"medium"`
	Low          int `db:"low"           json:"low"`
	OpenFindings int `db:"-"             json:"open_findings"`
	Schedules    int `db:"-"             json:"schedules"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var out statsResponse
	if err := s.db.Get(ctx, &out, `
		SELECT
		  COUNT(*) AS total_runs,
		  COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
		  COALESCE(SUM(CASE WHEN status = 'partial' THEN 1 ELSE 0 END), 0) AS partial,
		  COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed,
		  COALESCE(SUM(findings_critical), 0) AS critical,
		  COALESCE(SUM(findings_high), 0) AS high,
		  COALESCE(SUM(findings_medium), 0) AS medium,
		  COALESCE(SUM(findings_low), 0) AS low
		FROM runs`); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	var open, scheds countRow
	_ = s.db.Get(ctx, &open, "SELECT COUNT(*) AS n FROM finding_lifecycles WHERE status = 'open'")
	_ = s.db.Get(ctx, &scheds, "SELECT COUNT(*) AS n FROM schedules WHERE enabled = 1")
	out.OpenFindings = open.N
	out.Schedules = scheds.N

	writeJSON(w, http.StatusOK, out)
}

// --- Notification handler ---

// handleNotifyTest sends a test notification through all configured channels.
func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	if !s.notifier.IsAnyConfigured() {
		writeError(w, http.StatusBadRequest, "no notification channels configured")
		return
	}
	s.notifier.SendTest(r.Context(), notify.Event{
		Type:     "test",
		Title:    "nbcheck test notification",
		Body:     "Notification delivery is working correctly.",
		Severity: "low",
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// --- SSE event stream ---

// handleEvents streams SSE to the client. Each frame is a JSON SSEEvent.
// Clients receive a "connected" event immediately, then live updates.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if behind a proxy

	ch := s.broadcaster.subscribe()
	defer s.broadcaster.unsubscribe(ch)

	// Send an initial connected event carrying the current status.
	connected, _ := json.Marshal(SSEEvent{Type: "connected", Payload: s.refreshStatus(r.Context())})
	fmt.Fprintf(w, "data: %s\n\n", connected)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			w.Write(frame)
			flusher.Flush()
		}
	}
}
