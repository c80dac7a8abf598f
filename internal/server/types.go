package server

// SSEEvent is serialised as JSON and pushed over the GET /events SSE stream.
type SSEEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ServerStatus is a live snapshot of the server and scheduler state.
type ServerStatus struct {
	CheckRunning    bool   `json:"check_running"`
	SchedulesActive int    `json:"schedules_active"`
	RunsTotal       int    `json:"runs_total"`
	OpenFindings    int    `json:"open_findings"`
	LastRunAt       string `json:"last_run_at,omitempty"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// countRow is a convenience struct for SELECT COUNT(*) AS n queries.
type countRow struct {
	N int `db:"n"`
}
