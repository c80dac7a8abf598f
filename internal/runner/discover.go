package runner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/notebookci/nbcheck/internal/suite"
)

// skipDirs are directory names never descended into during discovery.
// Hidden directories are skipped as well, which already covers
// .ipynb_checkpoints and .git; these stay listed for clarity.
var skipDirs = map[string]struct{}{
	".git":               {},
	".ipynb_checkpoints": {},
	"node_modules":       {},
	"venv":               {},
}

// DiscoverNotebooks resolves target to a root directory plus the relative,
// sorted notebook paths beneath it. A target naming a single notebook file
// yields that notebook regardless of suite globs; for a directory target the
// suite's notebook globs (when present) filter the walk.
func DiscoverNotebooks(target string, st *suite.Suite) (string, []string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return "", nil, err
	}
	if !info.IsDir() {
		if !strings.HasSuffix(target, ".ipynb") {
			return "", nil, fmt.Errorf("%s is not a notebook or a directory", target)
		}
		return filepath.Dir(target), []string{filepath.Base(target)}, nil
	}

	var found []string
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		name := d.Name()
		if d.IsDir() {
			if path == target {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".ipynb") {
			return nil
		}
		rel, relErr := filepath.Rel(target, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if st != nil && !st.SelectsNotebook(rel) {
			return nil
		}
		found = append(found, rel)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	sort.Strings(found)
	return target, found, nil
}
