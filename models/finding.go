package models

import "time"

// Finding records one check violation discovered in a notebook.
type Finding struct {
	ID           int64         `json:"id"            db:"id"`
	RunID        int64         `json:"run_id"        db:"run_id"`
	Repo         string        `json:"repo"          db:"repo"`
	Notebook     string        `json:"notebook"      db:"notebook"`
	CheckID      string        `json:"check_id"      db:"check_id"`
	Kind         string        `json:"kind"          db:"kind"` // error_outputs|cell_cardinality|value_mismatch
	Severity     SeverityLevel `json:"severity"      db:"severity"`
	CellIndex    int           `json:"cell_index"    db:"cell_index"`
	OutputIndex  int           `json:"output_index"  db:"output_index"`
	Message      string        `json:"message"       db:"message"`
	Actual       string        `json:"actual"        db:"actual"`
	Expected     string        `json:"expected"      db:"expected"` // JSON array of accepted values
	Fingerprint  string        `json:"fingerprint"   db:"fingerprint"`
	Status       string        `json:"status"        db:"status"` // open|resolved
	Introduced   bool          `json:"introduced"    db:"introduced"`
	Reintroduced bool          `json:"reintroduced"  db:"reintroduced"`
	FirstSeenAt  time.Time     `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt   time.Time     `json:"last_seen_at"  db:"last_seen_at"`
}

// FindingLifecycle tracks one violation's history across runs of the same
// target, keyed by kind and fingerprint.
type FindingLifecycle struct {
	ID                int64         `json:"id"                  db:"id"`
	Repo              string        `json:"repo"                db:"repo"`
	Branch            string        `json:"branch"              db:"branch"`
	Path              string        `json:"path"                db:"path"`
	Notebook          string        `json:"notebook"            db:"notebook"`
	CheckID           string        `json:"check_id"            db:"check_id"`
	Kind              string        `json:"kind"                db:"kind"`
	Fingerprint       string        `json:"fingerprint"         db:"fingerprint"`
	Status            string        `json:"status"              db:"status"` // open|resolved
	Severity          SeverityLevel `json:"severity"            db:"severity"`
	Message           string        `json:"message"             db:"message"`
	ReintroducedCount int           `json:"reintroduced_count"  db:"reintroduced_count"`
	TotalSeenCount    int           `json:"total_seen_count"    db:"total_seen_count"`
	FirstSeenRunID    int64         `json:"first_seen_run_id"   db:"first_seen_run_id"`
	LastSeenRunID     int64         `json:"last_seen_run_id"    db:"last_seen_run_id"`
	ResolvedAtRunID   *int64        `json:"resolved_at_run_id"  db:"resolved_at_run_id"`
	FirstSeenAt       time.Time     `json:"first_seen_at"       db:"first_seen_at"`
	LastSeenAt        time.Time     `json:"last_seen_at"        db:"last_seen_at"`
}
