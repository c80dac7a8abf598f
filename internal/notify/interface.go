package notify

import "context"

// Event represents a notification event from nbcheck.
type Event struct {
	Type     string         // "regression_found" | "run_failed" | "run_completed" | "test"
	Title    string
	Body     string
	URL      string         // optional deep link (e.g. server UI link)
	Severity string         // "critical" | "high" | "medium" | "low" | ""
	RepoKey  string         // "owner/repo@branch"
	Metadata map[string]any // extra structured data
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}
