package models

import "time"

// Schedule is a recurring check of a watched repository, executed by the
// server's cron scheduler.
type Schedule struct {
	ID        int64      `json:"id"          db:"id"`
	Repo      string     `json:"repo"        db:"repo"` // owner/name or clone URL
	Branch    string     `json:"branch"      db:"branch"`
	Suite     string     `json:"suite"       db:"suite"`
	CronExpr  string     `json:"cron_expr"   db:"cron_expr"`
	Enabled   bool       `json:"enabled"     db:"enabled"`
	CreatedAt time.Time  `json:"created_at"  db:"created_at"`
	LastRunAt *time.Time `json:"last_run_at" db:"last_run_at"`
}
