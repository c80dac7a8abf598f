package validate

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/notebookci/nbcheck/internal/nbformat"
)

var evalPattern = regexp.MustCompile(`trainer\.test_minibatch`)

func notebook(cells ...nbformat.Cell) *nbformat.Notebook {
	return &nbformat.Notebook{Cells: cells, NBFormat: 4}
}

func codeCell(source string, outputs ...nbformat.Output) nbformat.Cell {
	return nbformat.Cell{Type: nbformat.CellCode, Source: source, Outputs: outputs}
}

func markdownCell(source string) nbformat.Cell {
	return nbformat.Cell{Type: nbformat.CellMarkdown, Source: source}
}

func resultOutput(value string) nbformat.Output {
	return nbformat.Output{
		Type: nbformat.OutputExecuteResult,
		Data: map[string]string{nbformat.MIMETextPlain: value},
	}
}

func errorOutput(ename, evalue string) nbformat.Output {
	return nbformat.Output{Type: nbformat.OutputError, Ename: ename, Evalue: evalue}
}

// mustFail asserts err is a *Failure of the given kind and returns it.
func mustFail(t *testing.T, err error, kind FailureKind) *Failure {
	t.Helper()
	if err == nil {
		t.Fatalf("check passed, want %s failure", kind)
	}
	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error %v is not a *Failure", err)
	}
	if f.Kind != kind {
		t.Fatalf("failure kind = %s, want %s", f.Kind, kind)
	}
	return f
}

func TestNoErrorOutputsCleanNotebook(t *testing.T) {
	nb := notebook(
		markdownCell("# Training"),
		codeCell("model.train()", resultOutput("done")),
		codeCell("error = trainer.test_minibatch(mb)", resultOutput("0.98")),
	)
	if err := NoErrorOutputs(nb); err != nil {
		t.Fatalf("NoErrorOutputs: %v", err)
	}
}

func TestNoErrorOutputsReportsAllErrors(t *testing.T) {
	nb := notebook(
		codeCell("import cntk"),
		codeCell("1/0", errorOutput("ZeroDivisionError", "division by zero")),
		codeCell("open('missing')",
			resultOutput("partial"),
			errorOutput("FileNotFoundError", "missing")),
	)
	f := mustFail(t, NoErrorOutputs(nb), KindErrorOutputs)
	if len(f.ErrorOutputs) != 2 {
		t.Fatalf("reported %d error outputs, want 2", len(f.ErrorOutputs))
	}
	first := f.ErrorOutputs[0]
	if first.CellIndex != 1 || first.OutputIndex != 0 || first.Ename != "ZeroDivisionError" {
		t.Errorf("first ref = %+v", first)
	}
	second := f.ErrorOutputs[1]
	if second.CellIndex != 2 || second.OutputIndex != 1 || second.Ename != "FileNotFoundError" {
		t.Errorf("second ref = %+v", second)
	}
}

func TestNoErrorOutputsEmptyNotebook(t *testing.T) {
	if err := NoErrorOutputs(notebook()); err != nil {
		t.Fatalf("empty notebook should pass: %v", err)
	}
}

func TestEvalOutputMatchesAcceptedValues(t *testing.T) {
	for _, value := range []string{"0.98", "0.99"} {
		nb := notebook(
			markdownCell("## Evaluate"),
			codeCell("error = trainer.test_minibatch(mb)", resultOutput(value)),
		)
		if err := EvalOutputMatches(nb, evalPattern, []string{"0.98", "0.99"}); err != nil {
			t.Errorf("value %s rejected: %v", value, err)
		}
	}
}

func TestEvalOutputValueMismatch(t *testing.T) {
	nb := notebook(codeCell("error = trainer.test_minibatch(mb)", resultOutput("0.95")))
	f := mustFail(t, EvalOutputMatches(nb, evalPattern, []string{"0.98", "0.99"}), KindValueMismatch)
	if f.Actual != "0.95" {
		t.Errorf("actual = %q, want 0.95", f.Actual)
	}
	if len(f.Accepted) != 2 || f.Accepted[0] != "0.98" {
		t.Errorf("accepted = %v", f.Accepted)
	}
	if f.CellIndex != 0 {
		t.Errorf("cell index = %d, want 0", f.CellIndex)
	}

	// A mismatch never counts as an error output.
	if err := NoErrorOutputs(nb); err != nil {
		t.Errorf("NoErrorOutputs on mismatching notebook: %v", err)
	}
}

func TestEvalOutputCardinality(t *testing.T) {
	tests := []struct {
		name  string
		nb    *nbformat.Notebook
		count int
	}{
		{"zero cells", notebook(), 0},
		{"no match", notebook(codeCell("print('hi')")), 0},
		{
			"markdown match ignored",
			notebook(markdownCell("call trainer.test_minibatch here")),
			0,
		},
		{
			"two matches",
			notebook(
				codeCell("trainer.test_minibatch(a)", resultOutput("0.98")),
				codeCell("trainer.test_minibatch(b)", resultOutput("0.99")),
			),
			2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustFail(t, EvalOutputMatches(tt.nb, evalPattern, []string{"0.98"}), KindCellCardinality)
			if f.MatchCount != tt.count {
				t.Errorf("match count = %d, want %d", f.MatchCount, tt.count)
			}
			if f.Pattern != evalPattern.String() {
				t.Errorf("pattern = %q", f.Pattern)
			}
		})
	}
}

func TestEvalOutputMatchedCellWithoutOutputs(t *testing.T) {
	nb := notebook(codeCell("error = trainer.test_minibatch(mb)"))
	f := mustFail(t, EvalOutputMatches(nb, evalPattern, []string{"0.98"}), KindValueMismatch)
	if f.Actual != "" {
		t.Errorf("actual = %q, want empty", f.Actual)
	}
}

func TestChecksAreIdempotent(t *testing.T) {
	nb := notebook(
		codeCell("error = trainer.test_minibatch(mb)", resultOutput("0.95")),
		codeCell("1/0", errorOutput("ZeroDivisionError", "division by zero")),
	)
	for i := 0; i < 2; i++ {
		mustFail(t, NoErrorOutputs(nb), KindErrorOutputs)
		mustFail(t, EvalOutputMatches(nb, evalPattern, []string{"0.98"}), KindValueMismatch)
	}
}

func TestAsFailureThroughWrapping(t *testing.T) {
	nb := notebook(codeCell("1/0", errorOutput("ZeroDivisionError", "division by zero")))
	err := NoErrorOutputs(nb)
	wrapped := fmt.Errorf("checking tutorial.ipynb: %w", err)
	f, ok := AsFailure(wrapped)
	if !ok {
		t.Fatalf("AsFailure missed wrapped failure: %v", wrapped)
	}
	if f.Kind != KindErrorOutputs {
		t.Errorf("kind = %s", f.Kind)
	}

	if _, ok := AsFailure(fmt.Errorf("plain error")); ok {
		t.Error("AsFailure matched a plain error")
	}
}

func TestCheckInterface(t *testing.T) {
	nb := notebook(
		codeCell("error = trainer.test_minibatch(mb)",
			nbformat.Output{
				Type: nbformat.OutputExecuteResult,
				Data: map[string]string{
					nbformat.MIMETextPlain: "0.98",
					"text/html":            "<b>0.98</b>",
				},
			}),
	)

	checks := []Check{
		&NoErrorOutputsCheck{CheckID: "clean-outputs"},
		&OutputValueCheck{
			CheckID: "eval-metric",
			Pattern: evalPattern,
			Accept:  []string{"0.98", "0.99"},
		},
		&OutputValueCheck{
			CheckID: "eval-metric-html",
			Pattern: evalPattern,
			Accept:  []string{"<b>0.98</b>"},
			Mime:    "text/html",
		},
	}
	for _, c := range checks {
		if err := c.Run(nb); err != nil {
			t.Errorf("%s: %v", c.ID(), err)
		}
		if c.Describe() == "" {
			t.Errorf("%s: empty description", c.ID())
		}
	}
}
