package notify

import (
	"fmt"

	"github.com/notebookci/nbcheck/models"
)

// EventsForRun derives notification events from a finished run. The
// dispatcher's event and severity filters decide which ones actually go out.
func EventsForRun(run *models.Run) []Event {
	if run == nil {
		return nil
	}
	target := runTarget(run)
	repoKey := ""
	if run.Repo != "" {
		repoKey = target
	}

	var events []Event
	switch run.Status {
	case "failed", "partial":
		events = append(events, Event{
			Type:    "run_failed",
			Title:   fmt.Sprintf("nbcheck run %s for %s", run.Status, target),
			Body:    runSummary(run),
			RepoKey: repoKey,
		})
	case "completed":
		events = append(events, Event{
			Type:    "run_completed",
			Title:   fmt.Sprintf("nbcheck run completed for %s", target),
			Body:    runSummary(run),
			RepoKey: repoKey,
		})
	}

	if run.Introduced > 0 || run.Reintroduced > 0 {
		events = append(events, Event{
			Type:  "regression_found",
			Title: fmt.Sprintf("Notebook regressions in %s", target),
			Body: fmt.Sprintf("%d new and %d reintroduced finding(s).\n%s",
				run.Introduced, run.Reintroduced, runSummary(run)),
			Severity: worstSeverity(run),
			RepoKey:  repoKey,
		})
	}
	return events
}

// runTarget names the run for humans: owner/repo@branch when the run came
// from a remote repository, the local path otherwise.
func runTarget(run *models.Run) string {
	if run.Repo != "" {
		if run.Branch != "" {
			return run.Repo + "@" + run.Branch
		}
		return run.Repo
	}
	return run.Path
}

func runSummary(run *models.Run) string {
	s := fmt.Sprintf("%d/%d notebooks passed, %d finding(s): %d critical, %d high, %d medium, %d low",
		run.NotebooksTotal-run.NotebooksFailed, run.NotebooksTotal, run.FindingsTotal(),
		run.FindingsCritical, run.FindingsHigh, run.FindingsMedium, run.FindingsLow)
	if run.ErrorMsg != "" {
		s += "\nError: " + run.ErrorMsg
	}
	return s
}

// worstSeverity is the highest severity present among the run's findings.
func worstSeverity(run *models.Run) string {
	switch {
	case run.FindingsCritical > 0:
		return "critical"
	case run.FindingsHigh > 0:
		return "high"
	case run.FindingsMedium > 0:
		return "medium"
	case run.FindingsLow > 0:
		return "low"
	}
	return ""
}
