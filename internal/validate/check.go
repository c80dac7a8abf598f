package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/notebookci/nbcheck/internal/nbformat"
)

// Check kind names as they appear in suite files.
const (
	CheckNoErrorOutputs = "no_error_outputs"
	CheckOutputValue    = "output_value"
)

// Check validates one notebook. Implementations are stateless: Run holds no
// state between calls and returns the same result for the same notebook.
type Check interface {
	ID() string
	Kind() string
	Describe() string
	Run(nb *nbformat.Notebook) error
}

// NoErrorOutputsCheck fails when any cell output records a raised error.
type NoErrorOutputsCheck struct {
	CheckID string
}

func (c *NoErrorOutputsCheck) ID() string   { return c.CheckID }
func (c *NoErrorOutputsCheck) Kind() string { return CheckNoErrorOutputs }

func (c *NoErrorOutputsCheck) Describe() string {
	return "no cell output records a raised error"
}

func (c *NoErrorOutputsCheck) Run(nb *nbformat.Notebook) error {
	return NoErrorOutputs(nb)
}

// OutputValueCheck locates a single code cell by source pattern and verifies
// the cell's first output rendering is one of the accepted values. Mime
// selects the rendering to compare and defaults to text/plain.
type OutputValueCheck struct {
	CheckID string
	Pattern *regexp.Regexp
	Accept  []string
	Mime    string
}

func (c *OutputValueCheck) ID() string   { return c.CheckID }
func (c *OutputValueCheck) Kind() string { return CheckOutputValue }

func (c *OutputValueCheck) Describe() string {
	return fmt.Sprintf("cell matching %q outputs one of: %s",
		c.Pattern.String(), strings.Join(c.Accept, ", "))
}

func (c *OutputValueCheck) Run(nb *nbformat.Notebook) error {
	mime := c.Mime
	if mime == "" {
		mime = nbformat.MIMETextPlain
	}
	return outputValueMatches(nb, c.Pattern, mime, c.Accept)
}
