package findings

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/notebookci/nbcheck/internal/database"
	"github.com/notebookci/nbcheck/models"
)

type PersistRunOptions struct {
	RunID     int64
	Repo      string
	Branch    string
	Path      string
	CheckedAt time.Time
}

// RunDelta summarizes how a run changed the open-finding set for its target.
// The runner folds these counts into the run row.
type RunDelta struct {
	PresentCount      int `json:"present"`
	IntroducedCount   int `json:"introduced"`
	ResolvedCount     int `json:"resolved"`
	ReintroducedCount int `json:"reintroduced"`
}

type lifecycleRow struct {
	ID              int64     `db:"id"`
	Kind            string    `db:"kind"`
	Fingerprint     string    `db:"fingerprint"`
	Status          string    `db:"status"`
	FirstSeenAt     time.Time `db:"first_seen_at"`
	LastSeenAt      time.Time `db:"last_seen_at"`
	ReintroducedCnt int       `db:"reintroduced_count"`
	TotalSeenCount  int       `db:"total_seen_count"`
	FirstSeenRunID  int64     `db:"first_seen_run_id"`
	LastSeenRunID   int64     `db:"last_seen_run_id"`
	ResolvedAtRunID *int64    `db:"resolved_at_run_id"`
}

// PersistFindings stores the run's finding snapshot and updates lifecycle
// state for the target. A finding absent from the snapshot whose lifecycle is
// still open gets resolved; a finding whose lifecycle was resolved comes back
// as reintroduced.
func PersistFindings(ctx context.Context, db database.DB, opts PersistRunOptions, found []models.Finding) (*RunDelta, error) {
	if db == nil || opts.RunID <= 0 {
		return nil, nil
	}
	found = Dedup(found)

	now := opts.CheckedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if err := db.Exec(ctx, `DELETE FROM findings WHERE run_id = ?`, opts.RunID); err != nil {
		return nil, err
	}

	var existing []lifecycleRow
	if err := db.Select(ctx, &existing, `SELECT id, kind, fingerprint, status, first_seen_at, last_seen_at,
		reintroduced_count, total_seen_count, first_seen_run_id, last_seen_run_id, resolved_at_run_id
		FROM finding_lifecycles
		WHERE repo = ? AND branch = ? AND path = ?`,
		opts.Repo, opts.Branch, opts.Path); err != nil {
		return nil, err
	}

	lifeByKey := make(map[string]lifecycleRow, len(existing))
	for _, r := range existing {
		lifeByKey[keyFor(r.Kind, r.Fingerprint)] = r
	}

	delta := &RunDelta{PresentCount: len(found)}
	presentKeys := make(map[string]struct{}, len(found))
	type snapshotMeta struct {
		FirstSeen time.Time
		Status    string
		Intro     bool
		Reintro   bool
	}
	snapshot := make(map[string]snapshotMeta, len(found))

	for _, f := range found {
		k := keyFor(f.Kind, f.Fingerprint)
		presentKeys[k] = struct{}{}
		prev, hasPrev := lifeByKey[k]

		if !hasPrev {
			delta.IntroducedCount++
			if err := db.Exec(ctx, `INSERT INTO finding_lifecycles (
				repo, branch, path, notebook, check_id, kind, fingerprint, status, severity, message,
				reintroduced_count, total_seen_count,
				first_seen_run_id, last_seen_run_id, resolved_at_run_id,
				first_seen_at, last_seen_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, 'open', ?, ?, 0, 1, ?, ?, NULL, ?, ?)`,
				opts.Repo, opts.Branch, opts.Path, f.Notebook, f.CheckID, f.Kind, f.Fingerprint, f.Severity, f.Message,
				opts.RunID, opts.RunID, now, now,
			); err != nil {
				return nil, err
			}
			snapshot[k] = snapshotMeta{FirstSeen: now, Status: "open", Intro: true}
			continue
		}

		reintroduced := strings.EqualFold(strings.TrimSpace(prev.Status), "resolved")
		reintroInc := 0
		if reintroduced {
			reintroInc = 1
			delta.ReintroducedCount++
		}
		if err := db.Exec(ctx, `UPDATE finding_lifecycles
			SET status = 'open',
			    notebook = ?, check_id = ?, severity = ?, message = ?,
			    last_seen_run_id = ?, last_seen_at = ?, resolved_at_run_id = NULL,
			    reintroduced_count = reintroduced_count + ?,
			    total_seen_count = total_seen_count + 1
			WHERE repo = ? AND branch = ? AND path = ? AND kind = ? AND fingerprint = ?`,
			f.Notebook, f.CheckID, f.Severity, f.Message,
			opts.RunID, now,
			reintroInc,
			opts.Repo, opts.Branch, opts.Path, f.Kind, f.Fingerprint,
		); err != nil {
			return nil, err
		}
		firstSeen := prev.FirstSeenAt
		if firstSeen.IsZero() {
			firstSeen = now
		}
		snapshot[k] = snapshotMeta{FirstSeen: firstSeen, Status: "open", Reintro: reintroduced}
	}

	for _, prev := range existing {
		k := keyFor(prev.Kind, prev.Fingerprint)
		if _, ok := presentKeys[k]; ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(prev.Status), "open") {
			continue
		}
		delta.ResolvedCount++
		if err := db.Exec(ctx, `UPDATE finding_lifecycles
			SET status = 'resolved', resolved_at_run_id = ?
			WHERE repo = ? AND branch = ? AND path = ? AND kind = ? AND fingerprint = ?`,
			opts.RunID,
			opts.Repo, opts.Branch, opts.Path, prev.Kind, prev.Fingerprint,
		); err != nil {
			return nil, err
		}
	}

	for _, f := range found {
		meta := snapshot[keyFor(f.Kind, f.Fingerprint)]
		rec := f
		rec.ID = 0
		rec.RunID = opts.RunID
		rec.Status = meta.Status
		if rec.Status == "" {
			rec.Status = "open"
		}
		rec.Introduced = meta.Intro
		rec.Reintroduced = meta.Reintro
		rec.FirstSeenAt = meta.FirstSeen
		if rec.FirstSeenAt.IsZero() {
			rec.FirstSeenAt = now
		}
		rec.LastSeenAt = now
		if _, err := db.Insert(ctx, "findings", &rec); err != nil {
			return nil, err
		}
	}

	return delta, nil
}

// IsNoSuchTableError helps callers gracefully degrade before migrations are applied.
func IsNoSuchTableError(err error) bool {
	if err == nil {
		return false
	}
	if err == sql.ErrNoRows {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such table")
}

func LogPersistError(runID int64, err error) {
	if err == nil {
		return
	}
	slog.Warn("Failed to persist finding lifecycle", "run_id", runID, "error", err)
}

func DeltaDebugString(d *RunDelta) string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("present=%d introduced=%d resolved=%d reintroduced=%d", d.PresentCount, d.IntroducedCount, d.ResolvedCount, d.ReintroducedCount)
}
