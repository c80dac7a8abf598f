package notify

import (
	"context"
	"testing"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/models"
)

type fakeChannel struct {
	name string
	sent []Event
}

func (f *fakeChannel) Name() string       { return f.name }
func (f *fakeChannel) IsConfigured() bool { return true }
func (f *fakeChannel) Send(_ context.Context, evt Event) error {
	f.sent = append(f.sent, evt)
	return nil
}

func newTestDispatcher(cfg config.NotifyConfig) (*Dispatcher, *fakeChannel) {
	d := NewDispatcher(cfg)
	ch := &fakeChannel{name: "fake"}
	d.channels = append(d.channels, ch)
	return d, ch
}

func TestDispatcherDefaultEventFilter(t *testing.T) {
	d, ch := newTestDispatcher(config.NotifyConfig{})

	d.Notify(context.Background(), Event{Type: "regression_found", Severity: "critical"})
	d.Notify(context.Background(), Event{Type: "run_failed"})
	d.Notify(context.Background(), Event{Type: "run_completed"})

	if len(ch.sent) != 2 {
		t.Fatalf("sent %d events, want 2", len(ch.sent))
	}
	if ch.sent[0].Type != "regression_found" || ch.sent[1].Type != "run_failed" {
		t.Errorf("sent wrong events: %q, %q", ch.sent[0].Type, ch.sent[1].Type)
	}
}

func TestDispatcherConfiguredEvents(t *testing.T) {
	d, ch := newTestDispatcher(config.NotifyConfig{Events: []string{"run_completed"}})

	d.Notify(context.Background(), Event{Type: "run_completed"})
	d.Notify(context.Background(), Event{Type: "run_failed"})

	if len(ch.sent) != 1 || ch.sent[0].Type != "run_completed" {
		t.Fatalf("sent %v, want only run_completed", ch.sent)
	}
}

func TestDispatcherSeverityFloor(t *testing.T) {
	d, ch := newTestDispatcher(config.NotifyConfig{MinSeverity: "high"})

	d.Notify(context.Background(), Event{Type: "regression_found", Severity: "medium"})
	if len(ch.sent) != 0 {
		t.Fatalf("medium severity should be filtered at min_severity=high")
	}
	d.Notify(context.Background(), Event{Type: "regression_found", Severity: "critical"})
	if len(ch.sent) != 1 {
		t.Fatalf("critical severity should pass min_severity=high")
	}
	// Events without a severity are not subject to the floor.
	d.Notify(context.Background(), Event{Type: "run_failed"})
	if len(ch.sent) != 2 {
		t.Fatalf("run_failed without severity should pass, sent=%d", len(ch.sent))
	}
}

func TestSendTestBypassesFilters(t *testing.T) {
	d, ch := newTestDispatcher(config.NotifyConfig{
		MinSeverity: "critical",
		Events:      []string{"regression_found"},
	})

	d.SendTest(context.Background(), Event{Type: "test", Severity: "low"})
	if len(ch.sent) != 1 || ch.sent[0].Type != "test" {
		t.Fatalf("SendTest should bypass filters, sent=%v", ch.sent)
	}
}

func TestSeverityAtLeast(t *testing.T) {
	cases := []struct {
		got, min string
		want     bool
	}{
		{"critical", "high", true},
		{"high", "high", true},
		{"medium", "high", false},
		{"low", "medium", false},
		{"critical", "critical", true},
	}
	for _, tc := range cases {
		if got := severityAtLeast(tc.got, tc.min); got != tc.want {
			t.Errorf("severityAtLeast(%q, %q) = %v, want %v", tc.got, tc.min, got, tc.want)
		}
	}
}

func TestEventsForRunCompleted(t *testing.T) {
	run := &models.Run{
		Repo:           "acme/notebooks",
		Branch:         "main",
		Status:         "completed",
		NotebooksTotal: 3,
	}
	events := EventsForRun(run)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != "run_completed" {
		t.Errorf("Type = %q, want run_completed", events[0].Type)
	}
	if events[0].RepoKey != "acme/notebooks@main" {
		t.Errorf("RepoKey = %q", events[0].RepoKey)
	}
}

func TestEventsForRunWithRegressions(t *testing.T) {
	run := &models.Run{
		Repo:             "acme/notebooks",
		Branch:           "main",
		Status:           "completed",
		NotebooksTotal:   5,
		NotebooksFailed:  1,
		FindingsCritical: 1,
		FindingsHigh:     2,
		Introduced:       3,
	}
	events := EventsForRun(run)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	var regression *Event
	for i := range events {
		if events[i].Type == "regression_found" {
			regression = &events[i]
		}
	}
	if regression == nil {
		t.Fatal("no regression_found event")
	}
	if regression.Severity != "critical" {
		t.Errorf("Severity = %q, want critical", regression.Severity)
	}
}

func TestEventsForRunFailedLocalPath(t *testing.T) {
	run := &models.Run{
		Path:     "/tmp/notebooks",
		Status:   "failed",
		ErrorMsg: "all notebooks failed to load",
	}
	events := EventsForRun(run)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != "run_failed" {
		t.Errorf("Type = %q, want run_failed", events[0].Type)
	}
	if events[0].RepoKey != "" {
		t.Errorf("RepoKey = %q, want empty for local runs", events[0].RepoKey)
	}
}

func TestWorstSeverity(t *testing.T) {
	if got := worstSeverity(&models.Run{FindingsMedium: 2, FindingsLow: 1}); got != "medium" {
		t.Errorf("worstSeverity = %q, want medium", got)
	}
	if got := worstSeverity(&models.Run{}); got != "" {
		t.Errorf("worstSeverity = %q, want empty", got)
	}
}
