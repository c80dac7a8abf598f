package models

import "time"

// Run tracks one invocation of a check suite against a target.
type Run struct {
	ID               int64      `json:"id"                db:"id"`
	UniqueKey        string     `json:"unique_key"        db:"unique_key"` // repo:branch:path:started_nanos
	Repo             string     `json:"repo"              db:"repo"`       // owner/name, empty for plain local paths
	Branch           string     `json:"branch"            db:"branch"`
	Path             string     `json:"path"              db:"path"`
	Suite            string     `json:"suite"             db:"suite"`
	Status           string     `json:"status"            db:"status"` // pending|running|completed|partial|failed
	NotebooksTotal   int        `json:"notebooks_total"   db:"notebooks_total"`
	NotebooksFailed  int        `json:"notebooks_failed"  db:"notebooks_failed"` // notebooks that did not pass
	FindingsCritical int        `json:"findings_critical" db:"findings_critical"`
	FindingsHigh     int        `json:"findings_high"     db:"findings_high"`
	FindingsMedium   int        `json:"findings_medium"   db:"findings_medium"`
	FindingsLow      int        `json:"findings_low"      db:"findings_low"`
	Introduced       int        `json:"introduced"        db:"introduced"`
	Resolved         int        `json:"resolved"          db:"resolved"`
	Reintroduced     int        `json:"reintroduced"      db:"reintroduced"`
	StartedAt        time.Time  `json:"started_at"        db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"      db:"completed_at"`
	ErrorMsg         string     `json:"error_msg"         db:"error_msg"`
}

// FindingsTotal is the number of findings across all severities.
func (r *Run) FindingsTotal() int {
	return r.FindingsCritical + r.FindingsHigh + r.FindingsMedium + r.FindingsLow
}

// Passed reports whether the run completed without any findings.
func (r *Run) Passed() bool {
	return r.Status == "completed" && r.FindingsTotal() == 0
}

// NotebookResult tracks an individual notebook's outcome within a run.
type NotebookResult struct {
	ID            int64  `json:"id"             db:"id"`
	RunID         int64  `json:"run_id"         db:"run_id"`
	Notebook      string `json:"notebook"       db:"notebook"` // path relative to the target root
	Status        string `json:"status"         db:"status"`   // passed|failed|error
	ChecksRun     int    `json:"checks_run"     db:"checks_run"`
	FindingsCount int    `json:"findings_count" db:"findings_count"`
	DurationMs    int64  `json:"duration_ms"    db:"duration_ms"`
	ErrorMsg      string `json:"error_msg"      db:"error_msg"`
}
