package server

import (
	"encoding/json"
	"net/http"

	"github.com/notebookci/nbcheck/models"
)

// scheduleRequest is the body for POST/PUT /api/schedules.
type scheduleRequest struct {
	Repo     string `json:"repo"`
	Branch   string `json:"branch"`
	Suite    string `json:"suite"`
	CronExpr string `json:"cron_expr"`
	Enabled  bool   `json:"enabled"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.scheduler.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if schedules == nil {
		schedules = []models.Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Repo == "" || req.CronExpr == "" {
		writeError(w, http.StatusBadRequest, "repo and cron_expr are required")
		return
	}
	sched := models.Schedule{
		Repo:     req.Repo,
		Branch:   req.Branch,
		Suite:    req.Suite,
		CronExpr: req.CronExpr,
		Enabled:  req.Enabled,
	}
	id, err := s.scheduler.Add(r.Context(), sched)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sched.ID = id
	s.broadcaster.send(SSEEvent{Type: "schedule.created", Payload: map[string]any{"id": id}})
	writeJSON(w, http.StatusCreated, sched)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Repo == "" || req.CronExpr == "" {
		writeError(w, http.StatusBadRequest, "repo and cron_expr are required")
		return
	}
	sched := models.Schedule{
		Repo:     req.Repo,
		Branch:   req.Branch,
		Suite:    req.Suite,
		CronExpr: req.CronExpr,
		Enabled:  req.Enabled,
	}
	if err := s.scheduler.Update(r.Context(), id, sched); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.broadcaster.send(SSEEvent{Type: "schedule.updated", Payload: map[string]any{"id": id}})
	sched.ID = id
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.scheduler.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	s.broadcaster.send(SSEEvent{Type: "schedule.deleted", Payload: map[string]any{"id": id}})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.scheduler.TriggerNow(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}
