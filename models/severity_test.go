package models

import "testing"

func TestSeverityOrdering(t *testing.T) {
	order := []SeverityLevel{
		SeverityCritical, SeverityHigh, SeverityMedium,
		SeverityLow, SeverityInfo, SeverityUnknown,
	}
	for i := 1; i < len(order); i++ {
		if order[i-1].Weight() <= order[i].Weight() {
			t.Errorf("%s (weight %d) should outrank %s (weight %d)",
				order[i-1], order[i-1].Weight(), order[i], order[i].Weight())
		}
	}
}

func TestSeverityForKind(t *testing.T) {
	tests := []struct {
		kind string
		want SeverityLevel
	}{
		{"error_outputs", SeverityCritical},
		{"value_mismatch", SeverityHigh},
		{"cell_cardinality", SeverityMedium},
		{"something_else", SeverityUnknown},
	}
	for _, tt := range tests {
		if got := SeverityForKind(tt.kind); got != tt.want {
			t.Errorf("SeverityForKind(%q) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestMapSeverity(t *testing.T) {
	tests := []struct {
		raw  string
		want SeverityLevel
	}{
		{"critical", SeverityCritical},
		{"HIGH", SeverityHigh},
		{"warning", SeverityMedium},
		{"low", SeverityLow},
		{"info", SeverityInfo},
		{"", SeverityUnknown},
		{"nonsense", SeverityUnknown},
	}
	for _, tt := range tests {
		if got := MapSeverity(tt.raw); got != tt.want {
			t.Errorf("MapSeverity(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
