package nbformat

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// multiline accepts the nbformat convention of storing text either as a
// single string or as a list of line fragments that join verbatim.
type multiline string

func (m *multiline) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*m = multiline(strings.Join(parts, ""))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*m = multiline(s)
	return nil
}

// Load reads and parses a notebook file from disk.
func Load(path string) (*Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading notebook: %w", err)
	}
	nb, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return nb, nil
}

// Parse decodes nbformat v4 JSON into a Notebook. Source and stream text
// may each be a string or a list of fragments on disk; both forms decode to
// the joined string. Mime data values that are neither form (plotly, vega
// and widget-state bundles store JSON objects) are skipped, not errors:
// the checks only ever read text renderings. Outputs stored on non-code
// cells are dropped so that only code cells ever carry them.
func Parse(data []byte) (*Notebook, error) {
	var raw struct {
		Cells []struct {
			CellType       string    `json:"cell_type"`
			Source         multiline `json:"source"`
			ExecutionCount *int      `json:"execution_count"`
			Outputs        []struct {
				OutputType string                     `json:"output_type"`
				Data       map[string]json.RawMessage `json:"data"`
				Text       multiline                  `json:"text"`
				Ename      string                     `json:"ename"`
				Evalue     string                     `json:"evalue"`
				Traceback  []string                   `json:"traceback"`
			} `json:"outputs"`
		} `json:"cells"`
		Metadata struct {
			Kernelspec struct {
				Name string `json:"name"`
			} `json:"kernelspec"`
			LanguageInfo struct {
				Name string `json:"name"`
			} `json:"language_info"`
		} `json:"metadata"`
		NBFormat      int `json:"nbformat"`
		NBFormatMinor int `json:"nbformat_minor"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding notebook JSON: %w", err)
	}
	if raw.NBFormat == 0 {
		return nil, fmt.Errorf("not a notebook document (missing nbformat)")
	}
	if raw.NBFormat < 4 {
		return nil, fmt.Errorf("unsupported nbformat version %d", raw.NBFormat)
	}

	nb := &Notebook{
		Kernel:        raw.Metadata.Kernelspec.Name,
		Language:      raw.Metadata.LanguageInfo.Name,
		NBFormat:      raw.NBFormat,
		NBFormatMinor: raw.NBFormatMinor,
	}

	for _, rc := range raw.Cells {
		cell := Cell{
			Type:   CellType(rc.CellType),
			Source: string(rc.Source),
		}
		if rc.ExecutionCount != nil {
			cell.ExecutionCount = *rc.ExecutionCount
		}
		if cell.Type == CellCode {
			for _, ro := range rc.Outputs {
				out := Output{
					Type:      OutputType(ro.OutputType),
					Text:      string(ro.Text),
					Ename:     ro.Ename,
					Evalue:    ro.Evalue,
					Traceback: ro.Traceback,
				}
				for mime, rawVal := range ro.Data {
					var v multiline
					if err := json.Unmarshal(rawVal, &v); err != nil {
						continue
					}
					if out.Data == nil {
						out.Data = make(map[string]string, len(ro.Data))
					}
					out.Data[mime] = string(v)
				}
				cell.Outputs = append(cell.Outputs, out)
			}
		}
		nb.Cells = append(nb.Cells, cell)
	}

	return nb, nil
}
