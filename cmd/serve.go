package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string
var serveLogDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nbcheck results server",
	Long: `Starts the nbcheck server: a long-running daemon that keeps run history
behind a REST + SSE API and checks watched repositories on cron schedules.

The server listens on localhost (default: http://127.0.0.1:8787) so you can:

  • Browse runs, notebook results, and findings over HTTP
  • Accept run reports pushed from CI hosts via 'nbcheck check --report-to'
  • Create cron schedules that re-check watched repositories automatically
  • Stream live events via GET /events (Server-Sent Events)

Example schedules:
  "0 2 * * *"   — every night at 02:00
  "@every 6h"   — every 6 hours
  "@daily"      — once per day at midnight

Quick API reference:
  GET  /api/health                     liveness check
  GET  /api/stats                      run and finding totals
  GET  /api/runs                       list runs (paginated)
  GET  /api/runs/:id                   run with notebook results and findings
  DELETE /api/runs/:id                 delete a run and its children
  GET  /api/findings                   list findings (?severity=&kind=)
  POST /api/runs/import                accept a pushed run report
  GET  /api/schedules                  list cron schedules
  POST /api/schedules                  create a schedule
  DELETE /api/schedules/:id            delete a schedule
  POST /api/schedules/:id/trigger      run a schedule immediately
  GET  /events                         SSE stream of live events`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (default 127.0.0.1:8787, overrides config)")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "logs",
		"directory to write server logs for later inspection")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down server gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logFilePath, closeLog, err := setupServerFileLogger(serveLogDir)
	if err != nil {
		return fmt.Errorf("initialising server logger: %w", err)
	}
	defer closeLog()

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	addr := serveAddr
	if addr == "" {
		port := cfg.Server.Port
		if port == 0 {
			port = 8787
		}
		addr = fmt.Sprintf("127.0.0.1:%d", port)
	}

	fmt.Printf("nbcheck server starting\n")
	fmt.Printf("  Database : %s (%s)\n", cfg.Database.Path, db.Driver())
	fmt.Printf("  API      : http://%s\n", addr)
	fmt.Printf("  Events   : http://%s/events\n", addr)
	fmt.Printf("  Logs     : %s\n\n", logFilePath)
	fmt.Println("Press Ctrl+C to stop gracefully.")
	fmt.Println("The server starts idle; add cron schedules or push reports to populate it.")
	fmt.Println()

	slog.Info("server logger initialised", "file", logFilePath)
	srv := server.New(cfg, db)
	srv.SetAddr(addr)
	return srv.Start(ctx)
}

func setupServerFileLogger(logDir string) (string, func(), error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("server-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, "server.log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile, latestFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}
