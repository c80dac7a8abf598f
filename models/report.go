package models

// RunReport is the payload pushed to POST /api/runs/import by
// `nbcheck check --report-to`. It carries the full run graph so a central
// server can mirror checks executed on CI hosts.
type RunReport struct {
	Run       Run              `json:"run"`
	Notebooks []NotebookResult `json:"notebooks"`
	Findings  []Finding        `json:"findings"`
}
