package nbformat

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleNotebook = `{
 "cells": [
  {
   "cell_type": "markdown",
   "metadata": {},
   "source": ["# Speech recognition tutorial\n", "Trains a CTC model."],
   "outputs": [{"output_type": "error", "ename": "Bogus", "evalue": "stray"}]
  },
  {
   "cell_type": "code",
   "execution_count": 12,
   "metadata": {},
   "source": ["error = trainer.test_minibatch(mb)\n", "error"],
   "outputs": [
    {
     "output_type": "stream",
     "name": "stdout",
     "text": ["evaluating...\n"]
    },
    {
     "output_type": "execute_result",
     "execution_count": 12,
     "data": {"text/plain": "0.98"},
     "metadata": {}
    }
   ]
  },
  {
   "cell_type": "code",
   "execution_count": null,
   "metadata": {},
   "source": "print('unexecuted')",
   "outputs": []
  }
 ],
 "metadata": {
  "kernelspec": {"display_name": "Python 3", "name": "python3"},
  "language_info": {"name": "python", "version": "3.6.4"}
 },
 "nbformat": 4,
 "nbformat_minor": 2
}`

func TestParse(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if nb.NBFormat != 4 || nb.NBFormatMinor != 2 {
		t.Errorf("format = %d.%d, want 4.2", nb.NBFormat, nb.NBFormatMinor)
	}
	if nb.Kernel != "python3" {
		t.Errorf("kernel = %q, want python3", nb.Kernel)
	}
	if nb.Language != "python" {
		t.Errorf("language = %q, want python", nb.Language)
	}
	if len(nb.Cells) != 3 {
		t.Fatalf("len(cells) = %d, want 3", len(nb.Cells))
	}

	md := nb.Cells[0]
	if md.Type != CellMarkdown {
		t.Errorf("cells[0].Type = %q, want markdown", md.Type)
	}
	if md.Source != "# Speech recognition tutorial\nTrains a CTC model." {
		t.Errorf("markdown source not joined: %q", md.Source)
	}
	if len(md.Outputs) != 0 {
		t.Errorf("markdown cell kept %d outputs, want 0", len(md.Outputs))
	}

	code := nb.Cells[1]
	if code.Type != CellCode || !code.IsCode() {
		t.Errorf("cells[1].Type = %q, want code", code.Type)
	}
	if code.Source != "error = trainer.test_minibatch(mb)\nerror" {
		t.Errorf("code source not joined: %q", code.Source)
	}
	if code.ExecutionCount != 12 {
		t.Errorf("execution count = %d, want 12", code.ExecutionCount)
	}
	if len(code.Outputs) != 2 {
		t.Fatalf("len(outputs) = %d, want 2", len(code.Outputs))
	}
	if code.Outputs[0].Type != OutputStream || code.Outputs[0].Text != "evaluating...\n" {
		t.Errorf("stream output = %+v", code.Outputs[0])
	}
	if v, ok := code.Outputs[1].PlainText(); !ok || v != "0.98" {
		t.Errorf("PlainText() = %q, %v, want 0.98, true", v, ok)
	}

	if count := len(nb.CodeCells()); count != 2 {
		t.Errorf("CodeCells() = %d cells, want 2", count)
	}
}

func TestParseRejectsNonNotebooks(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"cells": [`},
		{"missing nbformat", `{"cells": []}`},
		{"nbformat v3", `{"worksheets": [], "nbformat": 3}`},
		{"wrong shape", `[1, 2, 3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Fatalf("Parse accepted %s", tt.name)
			}
		})
	}
}

func TestParseErrorOutput(t *testing.T) {
	data := `{
	 "cells": [{
	  "cell_type": "code",
	  "execution_count": 1,
	  "source": "1/0",
	  "outputs": [{
	   "output_type": "error",
	   "ename": "ZeroDivisionError",
	   "evalue": "division by zero",
	   "traceback": ["Traceback (most recent call last)", "ZeroDivisionError: division by zero"]
	  }]
	 }],
	 "nbformat": 4, "nbformat_minor": 5
	}`
	nb, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out := nb.Cells[0].Outputs[0]
	if !out.IsError() {
		t.Fatalf("IsError() = false for %q", out.Type)
	}
	if out.Ename != "ZeroDivisionError" || out.Evalue != "division by zero" {
		t.Errorf("error fields = %q / %q", out.Ename, out.Evalue)
	}
	if len(out.Traceback) != 2 {
		t.Errorf("len(traceback) = %d, want 2", len(out.Traceback))
	}
	if _, ok := out.PlainText(); ok {
		t.Errorf("error output unexpectedly has text/plain data")
	}
}

func TestParseRichMimeBundle(t *testing.T) {
	data := `{
	 "cells": [{
	  "cell_type": "code",
	  "execution_count": 3,
	  "source": "fig.show()",
	  "outputs": [{
	   "output_type": "execute_result",
	   "execution_count": 3,
	   "data": {
	    "application/vnd.plotly.v1+json": {"data": [{"type": "scatter", "y": [1, 2]}], "layout": {}},
	    "application/vnd.jupyter.widget-view+json": {"model_id": "abc123", "version_major": 2},
	    "text/html": ["<div>", "figure", "</div>"],
	    "text/plain": "<Figure size 640x480>"
	   }
	  }]
	 },
	 {
	  "cell_type": "code",
	  "execution_count": 4,
	  "source": "error = trainer.test_minibatch(mb)\nerror",
	  "outputs": [{
	   "output_type": "execute_result",
	   "execution_count": 4,
	   "data": {"text/plain": "0.98"}
	  }]
	 }],
	 "nbformat": 4, "nbformat_minor": 5
	}`
	nb, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	fig := nb.Cells[0].Outputs[0]
	if v, ok := fig.PlainText(); !ok || v != "<Figure size 640x480>" {
		t.Errorf("PlainText() = %q, %v, want <Figure size 640x480>, true", v, ok)
	}
	if got := fig.Data["text/html"]; got != "<div>figure</div>" {
		t.Errorf("text/html = %q, want fragments joined", got)
	}
	if _, ok := fig.Data["application/vnd.plotly.v1+json"]; ok {
		t.Errorf("object-valued mime entry kept in Data")
	}
	if v, ok := nb.Cells[1].Outputs[0].PlainText(); !ok || v != "0.98" {
		t.Errorf("adjacent result PlainText() = %q, %v, want 0.98, true", v, ok)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tutorial.ipynb")
	if err := os.WriteFile(path, []byte(sampleNotebook), 0o644); err != nil {
		t.Fatal(err)
	}

	nb, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(nb.Cells) != 3 {
		t.Errorf("len(cells) = %d, want 3", len(nb.Cells))
	}

	if _, err := Load(filepath.Join(dir, "missing.ipynb")); err == nil {
		t.Error("Load succeeded on a missing file")
	}
}
