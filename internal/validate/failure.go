package validate

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind discriminates the ways a check can fail. Every kind is
// terminal for the check that produced it: no retry, no partial credit.
type FailureKind string

const (
	// KindErrorOutputs: one or more error outputs exist where none are allowed.
	KindErrorOutputs FailureKind = "error_outputs"
	// KindCellCardinality: the target-cell pattern matched zero or several code cells.
	KindCellCardinality FailureKind = "cell_cardinality"
	// KindValueMismatch: the matched cell's rendered output is not an accepted value.
	KindValueMismatch FailureKind = "value_mismatch"
)

// ErrorOutputRef locates one error output inside a notebook.
type ErrorOutputRef struct {
	CellIndex   int    `json:"cell_index"`
	OutputIndex int    `json:"output_index"`
	Ename       string `json:"ename"`
	Evalue      string `json:"evalue"`
}

func (r ErrorOutputRef) String() string {
	if r.Ename == "" {
		return fmt.Sprintf("cell %d output %d", r.CellIndex, r.OutputIndex)
	}
	return fmt.Sprintf("cell %d output %d: %s: %s", r.CellIndex, r.OutputIndex, r.Ename, r.Evalue)
}

// Failure is the error type produced by checks. Which fields are populated
// depends on Kind.
type Failure struct {
	Kind         FailureKind      `json:"kind"`
	ErrorOutputs []ErrorOutputRef `json:"error_outputs,omitempty"` // error_outputs
	Pattern      string           `json:"pattern,omitempty"`       // cell_cardinality, value_mismatch
	MatchCount   int              `json:"match_count"`             // cell_cardinality
	CellIndex    int              `json:"cell_index"`              // value_mismatch
	Actual       string           `json:"actual,omitempty"`        // value_mismatch
	Accepted     []string         `json:"accepted,omitempty"`      // value_mismatch
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindErrorOutputs:
		refs := make([]string, len(f.ErrorOutputs))
		for i, r := range f.ErrorOutputs {
			refs[i] = r.String()
		}
		return fmt.Sprintf("%d error output(s) found: %s", len(refs), strings.Join(refs, "; "))
	case KindCellCardinality:
		return fmt.Sprintf("pattern %q matched %d code cells, want exactly 1", f.Pattern, f.MatchCount)
	case KindValueMismatch:
		return fmt.Sprintf("cell %d output %q is not an accepted value (%s)",
			f.CellIndex, f.Actual, strings.Join(f.Accepted, ", "))
	default:
		return fmt.Sprintf("check failed (%s)", f.Kind)
	}
}

// AsFailure unwraps err to a *Failure when one is in its chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
