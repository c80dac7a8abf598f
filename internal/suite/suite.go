// Package suite manages check suites — named, declarative sets of output
// checks bound to the notebooks they validate.
package suite

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/notebookci/nbcheck/internal/validate"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// DefaultSuite is the suite used when a target carries no suite file of its
// own. It runs the notebook-wide error-output sweep and nothing else.
const DefaultSuite = "clean-outputs"

// RepoSuiteFile is the per-repository suite filename looked up in a target's
// root before falling back to named suites.
const RepoSuiteFile = ".nbcheck.yaml"

// Suite is a parsed check suite.
type Suite struct {
	// Version is the suite schema version. Currently always 1.
	Version int `yaml:"version"`
	// Name is the machine-readable identifier (matches the filename without .yaml).
	Name string `yaml:"name"`
	// Description is a one-line human-readable summary.
	Description string `yaml:"description,omitempty"`
	// Notebooks are glob patterns (relative to the target root) selecting the
	// notebooks to check. Empty means every notebook found under the root.
	Notebooks []string `yaml:"notebooks,omitempty"`
	// Checks are the output checks to run against each selected notebook.
	Checks []CheckSpec `yaml:"checks"`
	// Bundled is true if this suite was loaded from the embedded defaults.
	Bundled bool `yaml:"-"`
}

// CheckSpec is one check definition inside a suite file.
type CheckSpec struct {
	// ID uniquely identifies the check within the suite.
	ID string `yaml:"id"`
	// Type selects the check implementation: no_error_outputs | output_value.
	Type string `yaml:"type"`
	// CellPattern is a regular expression matched against code-cell source to
	// locate the single target cell. Required for output_value.
	CellPattern string `yaml:"cell_pattern,omitempty"`
	// Accept are the literal output values the target cell may produce.
	// Required, non-empty, for output_value.
	Accept []string `yaml:"accept,omitempty"`
	// Mime selects which output rendering to compare. Defaults to text/plain.
	Mime string `yaml:"mime,omitempty"`
}

// Parse decodes and validates a suite document.
func Parse(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("suite: invalid YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the suite definition for authoring errors.
func (s *Suite) Validate() error {
	if s.Version != 1 {
		return fmt.Errorf("suite: unsupported version %d", s.Version)
	}
	if len(s.Checks) == 0 {
		return fmt.Errorf("suite: no checks defined")
	}
	seen := make(map[string]bool, len(s.Checks))
	for i, c := range s.Checks {
		if c.ID == "" {
			return fmt.Errorf("suite: check %d has no id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("suite: duplicate check id %q", c.ID)
		}
		seen[c.ID] = true

		switch c.Type {
		case validate.CheckNoErrorOutputs:
			if c.CellPattern != "" || len(c.Accept) > 0 {
				return fmt.Errorf("suite: check %q: no_error_outputs takes no parameters", c.ID)
			}
		case validate.CheckOutputValue:
			if c.CellPattern == "" {
				return fmt.Errorf("suite: check %q: output_value requires cell_pattern", c.ID)
			}
			if _, err := regexp.Compile(c.CellPattern); err != nil {
				return fmt.Errorf("suite: check %q: invalid cell_pattern: %w", c.ID, err)
			}
			if len(c.Accept) == 0 {
				return fmt.Errorf("suite: check %q: output_value requires accept values", c.ID)
			}
		default:
			return fmt.Errorf("suite: check %q: unknown type %q", c.ID, c.Type)
		}
	}
	return nil
}

// Build constructs the runnable checks defined by the suite.
// The suite must already have passed Validate.
func (s *Suite) Build() ([]validate.Check, error) {
	checks := make([]validate.Check, 0, len(s.Checks))
	for _, c := range s.Checks {
		switch c.Type {
		case validate.CheckNoErrorOutputs:
			checks = append(checks, &validate.NoErrorOutputsCheck{CheckID: c.ID})
		case validate.CheckOutputValue:
			re, err := regexp.Compile(c.CellPattern)
			if err != nil {
				return nil, fmt.Errorf("suite: check %q: %w", c.ID, err)
			}
			checks = append(checks, &validate.OutputValueCheck{
				CheckID: c.ID,
				Pattern: re,
				Accept:  c.Accept,
				Mime:    c.Mime,
			})
		default:
			return nil, fmt.Errorf("suite: check %q: unknown type %q", c.ID, c.Type)
		}
	}
	return checks, nil
}

// LoadFile reads a suite from an explicit path.
func LoadFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("suite: reading %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("suite: %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Load reads a suite by name from the user suites directory, falling back to
// the bundled defaults. Returns an error if the suite does not exist.
func Load(name, suitesDir string) (*Suite, error) {
	if suitesDir != "" {
		path := filepath.Join(suitesDir, name+".yaml")
		if data, err := os.ReadFile(path); err == nil {
			s, err := Parse(data)
			if err != nil {
				return nil, fmt.Errorf("suite: parse %q: %w", path, err)
			}
			if s.Name == "" {
				s.Name = name
			}
			return s, nil
		}
	}

	data, err := defaultsFS.ReadFile("defaults/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("suite: suite %q not found", name)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("suite: parse bundled %q: %w", name, err)
	}
	if s.Name == "" {
		s.Name = name
	}
	s.Bundled = true
	return s, nil
}

// BundledBytes returns the raw YAML of a bundled default suite. Used by
// `nbcheck init` to write a starter suite file into a repository.
func BundledBytes(name string) ([]byte, error) {
	data, err := defaultsFS.ReadFile("defaults/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("suite: bundled suite %q not found", name)
	}
	return data, nil
}

// Resolve picks the suite for a target root: an explicit path wins, then the
// target's own .nbcheck.yaml, then the named (or default) suite.
func Resolve(explicitPath, root, name, suitesDir string) (*Suite, error) {
	if explicitPath != "" {
		return LoadFile(explicitPath)
	}
	if root != "" {
		repoFile := filepath.Join(root, RepoSuiteFile)
		if _, err := os.Stat(repoFile); err == nil {
			return LoadFile(repoFile)
		}
	}
	if name == "" {
		name = DefaultSuite
	}
	return Load(name, suitesDir)
}

// List returns all suites available — user-defined (from suitesDir) merged
// with bundled defaults. User suites shadow bundled ones of the same name.
func List(suitesDir string) ([]Suite, error) {
	byName := make(map[string]Suite)

	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return nil, fmt.Errorf("suite: reading embedded defaults: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := defaultsFS.ReadFile("defaults/" + entry.Name())
		if err != nil {
			continue
		}
		s, err := Parse(data)
		if err != nil {
			slog.Warn("suite: skipping malformed bundled suite", "file", entry.Name(), "error", err)
			continue
		}
		if s.Name == "" {
			s.Name = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		s.Bundled = true
		byName[s.Name] = *s
	}

	if suitesDir != "" {
		_ = filepath.WalkDir(suitesDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			s, err := Parse(data)
			if err != nil {
				slog.Warn("suite: skipping malformed user suite", "file", path, "error", err)
				return nil
			}
			if s.Name == "" {
				s.Name = strings.TrimSuffix(d.Name(), ".yaml")
			}
			byName[s.Name] = *s
			return nil
		})
	}

	out := make([]Suite, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	return out, nil
}

// DefaultDir returns the default suites directory: ~/.nbcheck/suites/.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nbcheck", "suites")
}

// Init creates the user suites directory and copies any missing bundled
// suites into it. Safe to call on every startup — skips files that already exist.
func Init(suitesDir string) error {
	if err := os.MkdirAll(suitesDir, 0o750); err != nil {
		return fmt.Errorf("suite: create dir %s: %w", suitesDir, err)
	}

	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return fmt.Errorf("suite: reading embedded defaults: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		dest := filepath.Join(suitesDir, entry.Name())
		if _, err := os.Stat(dest); err == nil {
			continue // already exists; don't overwrite user edits
		}
		data, err := defaultsFS.ReadFile("defaults/" + entry.Name())
		if err != nil {
			continue
		}
		if err := os.WriteFile(dest, data, 0o640); err != nil {
			slog.Warn("suite: failed to write default suite", "file", dest, "error", err)
		}
	}
	return nil
}

// SelectsNotebook reports whether the suite's notebook globs select the given
// path (relative to the target root). An empty glob list selects everything.
func (s *Suite) SelectsNotebook(rel string) bool {
	if len(s.Notebooks) == 0 {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.Notebooks {
		if matchGlob(filepath.ToSlash(pattern), rel) {
			return true
		}
	}
	return false
}

// matchGlob matches rel against pattern, treating a leading "**/" as
// "any directory prefix, including none".
func matchGlob(pattern, rel string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(suffix, filepath.Base(rel)); ok {
			return true
		}
		pattern = suffix
	}
	ok, _ := filepath.Match(pattern, rel)
	return ok
}
