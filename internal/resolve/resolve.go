// Package resolve locates files named loosely by a model.
package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dotcommander/lmagent/internal/errs"
)

// Status is the outcome of a lookup.
type Status string

// Statuses.
const (
	StatusFound       Status = "found"
	StatusSuggestions Status = "suggestions"
	StatusNotFound    Status = "not_found"
	StatusError       Status = "error"
)

// Match is the result of resolving a path.
type Match struct {
	Status      Status
	Path        string
	Suggestions []string
	// Dir is the directory that was searched.
	Dir string
	Err error
}

// Error returns an error describing a non found match, or nil.
func (m Match) Error() error {
	switch m.Status {
	case StatusFound:
		return nil
	case StatusSuggestions:
		return errs.Kind(errs.ErrAmbiguous, fmt.Errorf("%d files match: %s", len(m.Suggestions), strings.Join(m.Suggestions, ", ")))
	case StatusNotFound:
		return errs.Kind(errs.ErrNotFound, fmt.Errorf("no files matching %q found in directory: %s", filepath.Base(m.Path), m.Dir))
	default:
		return m.Err
	}
}

// Resolver resolves paths relative to Dir. An empty Dir means the process
// working directory.
type Resolver struct {
	Dir string
}

// Resolve finds path: the exact path first, then the bare name in the
// working directory, then entries of the inferred directory whose name starts
// with the base name, then entries containing it case-insensitively.
func (r Resolver) Resolve(path string) Match {
	cwd := r.Dir
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Match{Status: StatusError, Path: path, Err: fmt.Errorf("getwd: %w", err)}
		}
		cwd = wd
	}

	exact := path
	if !filepath.IsAbs(exact) {
		exact = filepath.Join(cwd, exact)
	}
	if ok, err := exists(exact); err != nil {
		return Match{Status: StatusError, Path: path, Err: err}
	} else if ok && path != "" {
		return Match{Status: StatusFound, Path: display(path, exact, r.Dir)}
	}

	base := filepath.Base(path)
	dir := filepath.Dir(path)
	searchDir := dir
	if !strings.ContainsRune(path, filepath.Separator) && !strings.ContainsRune(path, '/') {
		dir = ""
		searchDir = cwd
	} else if !filepath.IsAbs(searchDir) {
		searchDir = filepath.Join(cwd, searchDir)
	}

	if path == "" || base == "." || base == string(filepath.Separator) {
		return Match{Status: StatusNotFound, Path: path, Dir: searchDir}
	}

	entries, err := os.ReadDir(searchDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Match{Status: StatusNotFound, Path: path, Dir: searchDir}
		}
		return Match{Status: StatusError, Path: path, Dir: searchDir, Err: fmt.Errorf("read dir: %w", err)}
	}

	matches := filter(entries, func(name string) bool {
		return strings.HasPrefix(name, base)
	})
	if len(matches) == 0 {
		lower := strings.ToLower(base)
		matches = filter(entries, func(name string) bool {
			return strings.Contains(strings.ToLower(name), lower)
		})
	}

	prefix := dir
	if prefix == "" && r.Dir != "" {
		prefix = r.Dir
	}
	for i, name := range matches {
		if prefix != "" {
			matches[i] = filepath.Join(prefix, name)
		}
	}

	switch len(matches) {
	case 0:
		return Match{Status: StatusNotFound, Path: path, Dir: searchDir}
	case 1:
		return Match{Status: StatusFound, Path: matches[0], Dir: searchDir}
	default:
		return Match{Status: StatusSuggestions, Path: path, Suggestions: matches, Dir: searchDir}
	}
}

func filter(entries []os.DirEntry, keep func(string) bool) []string {
	var out []string
	for _, e := range entries {
		if keep(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return false, nil
	}
	return false, fmt.Errorf("stat: %w", err)
}

// display keeps the caller's spelling of a path unless it is relative to a
// non-default directory.
func display(path, joined, dir string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return joined
}
