package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/internal/notify"
	"github.com/notebookci/nbcheck/internal/repository"
	"github.com/notebookci/nbcheck/internal/runner"
	"github.com/notebookci/nbcheck/internal/suite"
	"github.com/notebookci/nbcheck/models"
)

// Server is the long-running daemon behind `nbcheck serve`. It combines:
//   - a REST + SSE HTTP API over the run history database
//   - a cron Scheduler that checks watched repositories on schedule
//   - an import endpoint accepting runs pushed from CI hosts
type Server struct {
	cfg         *config.Config
	db          database.DB
	notifier    *notify.Dispatcher
	scheduler   *Scheduler
	broadcaster *Broadcaster
	addr        string

	// checkQueue serialises scheduled checks; one repo is checked at a time.
	checkQueue chan models.Schedule

	mu        sync.RWMutex
	running   bool
	lastRunAt string
	startedAt time.Time
}

// New creates a Server. Call Start() to begin serving.
func New(cfg *config.Config, db database.DB) *Server {
	b := newBroadcaster()
	s := &Server{
		cfg:         cfg,
		db:          db,
		notifier:    notify.NewDispatcher(cfg.Notify),
		broadcaster: b,
		checkQueue:  make(chan models.Schedule, 16),
		startedAt:   time.Now(),
	}
	s.scheduler = newScheduler(db, s.enqueue, b.send)
	return s
}

// SetAddr overrides the listen address. Empty means 127.0.0.1:<server.port>.
func (s *Server) SetAddr(addr string) {
	s.addr = addr
}

func (s *Server) listenAddr() string {
	if s.addr != "" {
		return s.addr
	}
	port := s.cfg.Server.Port
	if port == 0 {
		port = 8787
	}
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// enqueue hands a fired schedule to the check loop. A full queue drops the
// trigger rather than blocking the cron goroutine.
func (s *Server) enqueue(sched models.Schedule) {
	select {
	case s.checkQueue <- sched:
	default:
		slog.Warn("server: check queue full, dropping scheduled check",
			"schedule", sched.ID, "repo", sched.Repo)
	}
}

// Start runs the server until ctx is cancelled. It:
//  1. Loads and starts the cron scheduler
//  2. Starts the loop that executes queued scheduled checks
//  3. Starts a status ticker that pushes DB stats over SSE
//  4. Binds the HTTP server (blocks until shutdown)
func (s *Server) Start(ctx context.Context) error {
	addr := s.listenAddr()

	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	go s.runCheckLoop(ctx)
	go s.runStatusTicker(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: buildHandler(s),
	}

	// Shut down the HTTP server when ctx is cancelled.
	go func() {
		<-ctx.Done()
		s.scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server: listening", "addr", "http://"+addr)
	s.broadcaster.send(SSEEvent{
		Type:    "server.started",
		Payload: map[string]string{"addr": "http://" + addr},
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// runCheckLoop executes queued scheduled checks one at a time.
func (s *Server) runCheckLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sched := <-s.checkQueue:
			s.executeSchedule(ctx, sched)
		}
	}
}

func (s *Server) executeSchedule(ctx context.Context, sched models.Schedule) {
	s.setRunning(true)
	defer s.setRunning(false)

	slog.Info("Starting scheduled check",
		"schedule", sched.ID, "repo", sched.Repo, "branch", sched.Branch)
	s.broadcaster.send(SSEEvent{Type: "check.started", Payload: map[string]any{
		"schedule": sched.ID, "repo": sched.Repo,
	}})

	run, err := s.checkRepo(ctx, sched)

	s.mu.Lock()
	s.lastRunAt = time.Now().UTC().Format(time.RFC3339)
	s.mu.Unlock()

	if err != nil {
		slog.Error("Scheduled check failed",
			"schedule", sched.ID, "repo", sched.Repo, "error", err)
		s.broadcaster.send(SSEEvent{Type: "check.failed", Payload: map[string]any{
			"schedule": sched.ID, "repo": sched.Repo, "error": err.Error(),
		}})
		s.notifier.Notify(ctx, notify.Event{
			Type:    "run_failed",
			Title:   fmt.Sprintf("nbcheck scheduled check failed for %s", sched.Repo),
			Body:    err.Error(),
			RepoKey: sched.Repo,
		})
		return
	}

	slog.Info("Scheduled check finished",
		"schedule", sched.ID, "repo", sched.Repo,
		"run_id", run.ID, "status", run.Status, "findings", run.FindingsTotal())
	s.broadcaster.send(SSEEvent{Type: "check.completed", Payload: map[string]any{
		"schedule": sched.ID, "repo": sched.Repo, "run_id": run.ID,
		"status": run.Status, "findings": run.FindingsTotal(),
	}})
	for _, evt := range notify.EventsForRun(run) {
		s.notifier.Notify(ctx, evt)
	}
}

// checkRepo clones the schedule's repository and runs its suite against it.
func (s *Server) checkRepo(ctx context.Context, sched models.Schedule) (*models.Run, error) {
	repoURL := repository.NormalizeURL(sched.Repo)
	token := ""
	if provider, err := repository.DetectProvider(repoURL); err == nil {
		token = repository.TokenForProvider(s.cfg, provider)
	}

	cm := repository.NewCloneManager()
	clone, err := cm.Clone(ctx, repoURL, token, sched.Branch)
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", sched.Repo, err)
	}
	defer cm.Cleanup(clone)

	st, err := suite.Resolve("", clone.LocalPath,
		firstNonEmpty(sched.Suite, s.cfg.Check.Suite), s.cfg.Check.SuitesDir)
	if err != nil {
		return nil, fmt.Errorf("resolving suite: %w", err)
	}
	checks, err := st.Build()
	if err != nil {
		return nil, err
	}

	repoKey := sched.Repo
	if clone.Owner != "" && clone.Repo != "" {
		repoKey = clone.Owner + "/" + clone.Repo
	}
	opts := &runner.RunOptions{
		Target:   clone.LocalPath,
		Repo:     repoKey,
		Branch:   clone.Branch,
		Suite:    st,
		Workers:  s.cfg.Check.Workers,
		Parallel: true,
	}
	res, err := runner.NewRunner(checks, s.db).Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	return res.AsRun(opts), nil
}

// runStatusTicker refreshes ServerStatus from the DB every 15 seconds and
// broadcasts a "status.update" SSE event to all connected clients.
func (s *Server) runStatusTicker(ctx context.Context) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.broadcaster.send(SSEEvent{Type: "status.update", Payload: s.refreshStatus(ctx)})
		}
	}
}

func (s *Server) refreshStatus(ctx context.Context) ServerStatus {
	var runs, open, scheds countRow
	_ = s.db.Get(ctx, &runs, "SELECT COUNT(*) AS n FROM runs")
	_ = s.db.Get(ctx, &open, "SELECT COUNT(*) AS n FROM finding_lifecycles WHERE status = 'open'")
	_ = s.db.Get(ctx, &scheds, "SELECT COUNT(*) AS n FROM schedules WHERE enabled = 1")

	s.mu.RLock()
	defer s.mu.RUnlock()
	return ServerStatus{
		CheckRunning:    s.running,
		SchedulesActive: scheds.N,
		RunsTotal:       runs.N,
		OpenFindings:    open.N,
		LastRunAt:       s.lastRunAt,
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
	}
}

func (s *Server) setRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
}
