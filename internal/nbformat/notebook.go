package nbformat

// CellType identifies what kind of cell a notebook cell is.
type CellType string

const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
	CellRaw      CellType = "raw"
)

// OutputType identifies what kind of artifact an executed cell produced.
type OutputType string

const (
	OutputExecuteResult OutputType = "execute_result"
	OutputDisplayData   OutputType = "display_data"
	OutputStream        OutputType = "stream"
	OutputError         OutputType = "error"
)

// MIMETextPlain is the mime key carrying the plain-text rendering of a result.
const MIMETextPlain = "text/plain"

// Notebook is an in-memory representation of an already-executed notebook.
// It is built once by Load/Parse and never mutated afterwards.
type Notebook struct {
	Cells         []Cell `json:"cells"`
	Kernel        string `json:"kernel"`
	Language      string `json:"language"`
	NBFormat      int    `json:"nbformat"`
	NBFormatMinor int    `json:"nbformat_minor"`
}

// Cell is one unit of a notebook. Outputs is inhabited only for code cells;
// the loader drops stored outputs on any other cell type so callers never
// need to probe for their presence.
type Cell struct {
	Type           CellType `json:"cell_type"`
	Source         string   `json:"source"`
	ExecutionCount int      `json:"execution_count,omitempty"`
	Outputs        []Output `json:"outputs,omitempty"`
}

// IsCode reports whether the cell is an executable code cell.
func (c Cell) IsCode() bool { return c.Type == CellCode }

// Output is one result artifact attached to an executed code cell.
// Data is set for result-bearing types (execute_result, display_data),
// Text for stream outputs, Ename/Evalue/Traceback for error outputs.
type Output struct {
	Type      OutputType        `json:"output_type"`
	Data      map[string]string `json:"data,omitempty"`
	Text      string            `json:"text,omitempty"`
	Ename     string            `json:"ename,omitempty"`
	Evalue    string            `json:"evalue,omitempty"`
	Traceback []string          `json:"traceback,omitempty"`
}

// IsError reports whether the output records a raised error.
func (o Output) IsError() bool { return o.Type == OutputError }

// PlainText returns the text/plain rendering of a result output,
// and whether one is present.
func (o Output) PlainText() (string, bool) {
	v, ok := o.Data[MIMETextPlain]
	return v, ok
}

// CodeCells returns the code cells of the notebook in order.
func (nb *Notebook) CodeCells() []Cell {
	var cells []Cell
	for _, c := range nb.Cells {
		if c.IsCode() {
			cells = append(cells, c)
		}
	}
	return cells
}
