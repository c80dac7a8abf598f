package models

// SeverityLevel represents how serious a check violation is.
type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "CRITICAL"
	SeverityHigh     SeverityLevel = "HIGH"
	SeverityMedium   SeverityLevel = "MEDIUM"
	SeverityLow      SeverityLevel = "LOW"
	SeverityInfo     SeverityLevel = "INFO"
	SeverityUnknown  SeverityLevel = "UNKNOWN"
)

// Weight returns a numeric weight for sorting (higher = more severe).
func (s SeverityLevel) Weight() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

func (s SeverityLevel) String() string {
	return string(s)
}

// SeverityForKind maps a check failure kind to a severity. An error output
// in a checked-in notebook is the worst case; a cardinality failure points
// at the suite rather than the notebook and ranks below a real regression.
func SeverityForKind(kind string) SeverityLevel {
	switch kind {
	case "error_outputs":
		return SeverityCritical
	case "value_mismatch":
		return SeverityHigh
	case "cell_cardinality":
		return SeverityMedium
	default:
		return SeverityUnknown
	}
}

// MapSeverity normalises user-supplied severity strings to SeverityLevel.
func MapSeverity(raw string) SeverityLevel {
	switch raw {
	case "CRITICAL", "critical":
		return SeverityCritical
	case "HIGH", "high", "ERROR", "error":
		return SeverityHigh
	case "MEDIUM", "medium", "MODERATE", "moderate", "WARNING", "warning":
		return SeverityMedium
	case "LOW", "low":
		return SeverityLow
	case "INFO", "info", "NEGLIGIBLE", "negligible":
		return SeverityInfo
	default:
		return SeverityUnknown
	}
}
