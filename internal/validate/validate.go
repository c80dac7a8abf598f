package validate

import (
	"regexp"

	"github.com/notebookci/nbcheck/internal/nbformat"
)

// NoErrorOutputs scans every output of every cell and fails when any of them
// records a raised error. Returns nil on a clean notebook, otherwise a
// *Failure of kind error_outputs carrying the full list of offending outputs.
// The scan is read-only; the notebook is never modified.
func NoErrorOutputs(nb *nbformat.Notebook) error {
	var refs []ErrorOutputRef
	for ci, cell := range nb.Cells {
		for oi, out := range cell.Outputs {
			if out.IsError() {
				refs = append(refs, ErrorOutputRef{
					CellIndex:   ci,
					OutputIndex: oi,
					Ename:       out.Ename,
					Evalue:      out.Evalue,
				})
			}
		}
	}
	if len(refs) > 0 {
		return &Failure{Kind: KindErrorOutputs, ErrorOutputs: refs}
	}
	return nil
}

// EvalOutputMatches locates the single code cell whose source matches
// pattern and verifies its first output's text/plain rendering equals one of
// the accepted literals. Zero or multiple matching cells fail with kind
// cell_cardinality; a value outside the accepted set (including a matched
// cell with no output at all) fails with kind value_mismatch.
func EvalOutputMatches(nb *nbformat.Notebook, pattern *regexp.Regexp, accept []string) error {
	return outputValueMatches(nb, pattern, nbformat.MIMETextPlain, accept)
}

func outputValueMatches(nb *nbformat.Notebook, pattern *regexp.Regexp, mime string, accept []string) error {
	matched, count := -1, 0
	for i, cell := range nb.Cells {
		if cell.IsCode() && pattern.MatchString(cell.Source) {
			matched = i
			count++
		}
	}
	if count != 1 {
		return &Failure{Kind: KindCellCardinality, Pattern: pattern.String(), MatchCount: count}
	}

	var actual string
	if outs := nb.Cells[matched].Outputs; len(outs) > 0 {
		actual = outs[0].Data[mime]
	}
	for _, want := range accept {
		if actual == want {
			return nil
		}
	}
	return &Failure{
		Kind:      KindValueMismatch,
		Pattern:   pattern.String(),
		CellIndex: matched,
		Actual:    actual,
		Accepted:  accept,
	}
}
