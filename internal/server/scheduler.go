package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/models"
)

// Scheduler loads the schedules table and registers each enabled entry with
// robfig/cron. When a schedule fires it calls triggerFn (queueing a check of
// the watched repository) and records last_run_at.
type Scheduler struct {
	db        database.DB
	cron      *cron.Cron
	triggerFn func(models.Schedule)
	broadcast func(SSEEvent)

	mu      sync.Mutex
	entries map[int64]cron.EntryID // schedule DB id -> cron entry id
}

func newScheduler(db database.DB, triggerFn func(models.Schedule), broadcast func(SSEEvent)) *Scheduler {
	return &Scheduler{
		db:        db,
		cron:      cron.New(),
		triggerFn: triggerFn,
		broadcast: broadcast,
		entries:   make(map[int64]cron.EntryID),
	}
}

// Start loads all enabled schedules from the DB and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	var schedules []models.Schedule
	if err := s.db.Select(ctx, &schedules,
		`SELECT * FROM schedules WHERE enabled = 1`,
	); err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	for _, sched := range schedules {
		if err := s.register(sched); err != nil {
			slog.Warn("scheduler: skipping schedule with invalid expression",
				"id", sched.ID, "repo", sched.Repo, "expr", sched.CronExpr, "error", err)
		}
	}

	s.cron.Start()
	slog.Info("check scheduler started", "schedules_loaded", len(schedules))
	return nil
}

// Stop halts the cron runner gracefully.
func (s *Scheduler) Stop() { s.cron.Stop() }

// register adds a schedule to the running cron instance.
func (s *Scheduler) register(sched models.Schedule) error {
	entryID, err := s.cron.AddFunc(sched.CronExpr, func() {
		if err := s.runSchedule(context.Background(), sched, "schedule.fired"); err != nil {
			slog.Warn("scheduler: firing schedule failed",
				"id", sched.ID, "repo", sched.Repo, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.CronExpr, err)
	}
	s.mu.Lock()
	s.entries[sched.ID] = entryID
	s.mu.Unlock()
	return nil
}

// validate checks that expr is parseable by robfig/cron without adding it
// permanently to any runner.
func validate(expr string) error {
	tmp := cron.New()
	id, err := tmp.AddFunc(expr, func() {})
	if err != nil {
		return err
	}
	tmp.Remove(id)
	return nil
}

// Add validates, persists, and registers a new schedule. Returns the new DB id.
func (s *Scheduler) Add(ctx context.Context, sched models.Schedule) (int64, error) {
	if err := validate(sched.CronExpr); err != nil {
		return 0, fmt.Errorf("invalid schedule expression %q: %w", sched.CronExpr, err)
	}
	sched.CreatedAt = time.Now().UTC()

	id, err := s.db.Insert(ctx, "schedules", &sched)
	if err != nil {
		return 0, err
	}
	sched.ID = id
	if sched.Enabled {
		if err := s.register(sched); err != nil {
			slog.Warn("scheduler: persisted but could not register schedule",
				"id", id, "error", err)
		}
	}
	return id, nil
}

// Update validates, persists, and re-registers an existing schedule.
func (s *Scheduler) Update(ctx context.Context, id int64, sched models.Schedule) error {
	if err := validate(sched.CronExpr); err != nil {
		return fmt.Errorf("invalid schedule expression %q: %w", sched.CronExpr, err)
	}

	var existing models.Schedule
	if err := s.db.Get(ctx, &existing,
		`SELECT * FROM schedules WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("loading schedule %d: %w", id, err)
	}

	if err := s.db.Exec(ctx,
		`UPDATE schedules
		    SET repo = ?, branch = ?, suite = ?, cron_expr = ?, enabled = ?
		  WHERE id = ?`,
		sched.Repo, sched.Branch, sched.Suite, sched.CronExpr, sched.Enabled, id,
	); err != nil {
		return err
	}

	s.mu.Lock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	sched.ID = id
	sched.CreatedAt = existing.CreatedAt
	sched.LastRunAt = existing.LastRunAt
	if sched.Enabled {
		if err := s.register(sched); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a schedule from cron and the DB.
func (s *Scheduler) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()
	return s.db.Exec(ctx, "DELETE FROM schedules WHERE id = ?", id)
}

// List returns all schedules ordered by id.
func (s *Scheduler) List(ctx context.Context) ([]models.Schedule, error) {
	var out []models.Schedule
	err := s.db.Select(ctx, &out, `SELECT * FROM schedules ORDER BY id`)
	return out, err
}

// TriggerNow queues the schedule's check immediately regardless of its cron
// expression, recording last_run_at.
func (s *Scheduler) TriggerNow(ctx context.Context, id int64) error {
	var sched models.Schedule
	if err := s.db.Get(ctx, &sched,
		`SELECT * FROM schedules WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("loading schedule %d: %w", id, err)
	}
	return s.runSchedule(ctx, sched, "schedule.triggered")
}

func (s *Scheduler) runSchedule(ctx context.Context, sched models.Schedule, eventType string) error {
	if err := s.db.Exec(ctx,
		"UPDATE schedules SET last_run_at = ? WHERE id = ?", time.Now().UTC(), sched.ID,
	); err != nil {
		return err
	}
	s.triggerFn(sched)
	payload := map[string]any{"id": sched.ID, "repo": sched.Repo}
	if eventType == "schedule.triggered" {
		payload["manual"] = true
	}
	s.broadcast(SSEEvent{Type: eventType, Payload: payload})
	return nil
}
