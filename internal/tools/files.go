package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/resolve"
)

type files struct {
	resolver resolve.Resolver
}

func (f files) tools() []Tool {
	return []Tool{
		{
			Name:        "create_file",
			Description: "Create a new file with the specified content",
			Parameters: object(map[string]any{
				"file_path": prop("string", "Path to the file to create"),
				"content":   prop("string", "Content to write to the file"),
			}, "file_path", "content"),
			Handler: f.create,
		},
		{
			Name:        "replace_text",
			Description: "Replace text in a file",
			Parameters: object(map[string]any{
				"file_path":    prop("string", "Path to the file"),
				"search_text":  prop("string", "Text to search for"),
				"replace_text": prop("string", "Text to replace with"),
			}, "file_path", "search_text", "replace_text"),
			Handler: f.replace,
		},
		{
			Name:        "insert_line",
			Description: "Insert a line at a specific position in a file",
			Parameters: object(map[string]any{
				"file_path":   prop("string", "Path to the file"),
				"line_number": prop("integer", "Line number to insert at (1-based)"),
				"content":     prop("string", "Content to insert"),
			}, "file_path", "line_number", "content"),
			Handler: f.insert,
		},
		{
			Name:        "view_file",
			Description: "View the contents of a file",
			Parameters: object(map[string]any{
				"file_path": prop("string", "Path to the file to view"),
			}, "file_path"),
			Handler: f.view,
		},
	}
}

func (f files) abs(path string) string {
	if filepath.IsAbs(path) || f.resolver.Dir == "" {
		return path
	}
	return filepath.Join(f.resolver.Dir, path)
}

// locate resolves path, turning every outcome but found into an error result.
func (f files) locate(path string) (string, *Result) {
	m := f.resolver.Resolve(path)
	switch m.Status {
	case resolve.StatusFound:
		return m.Path, nil
	case resolve.StatusSuggestions:
		r := Failure(errs.Kind(errs.ErrAmbiguous, errs.UserErrorf(
			"File '%s' not found. Did you mean one of these? %s",
			path, strings.Join(m.Suggestions, ", "),
		)))
		r.Suggestions = m.Suggestions
		return "", &r
	case resolve.StatusNotFound:
		r := Failure(m.Error())
		return "", &r
	default:
		r := Failure(fmt.Errorf("error searching for files: %w", m.Err))
		return "", &r
	}
}

func (f files) create(_ context.Context, args Args) Result {
	path, err := args.String("file_path")
	if err != nil {
		return Failure(err)
	}
	content, err := args.String("content")
	if err != nil {
		return Failure(err)
	}
	target := f.abs(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Failure(fmt.Errorf("create parent dirs: %w", err))
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil { //nolint:gosec
		return Failure(fmt.Errorf("write file: %w", err))
	}
	return Success(map[string]any{
		"message": fmt.Sprintf("File created at %s", path),
		"content": content,
	})
}

func (f files) replace(_ context.Context, args Args) Result {
	path, err := args.String("file_path")
	if err != nil {
		return Failure(err)
	}
	search, err := args.String("search_text")
	if err != nil {
		return Failure(err)
	}
	replacement, err := args.String("replace_text")
	if err != nil {
		return Failure(err)
	}
	if search == "" {
		return Failure(errs.Kind(errs.ErrValidation, errors.New("search_text must not be empty")))
	}

	actual, res := f.locate(path)
	if res != nil {
		return *res
	}
	b, err := os.ReadFile(actual)
	if err != nil {
		return Failure(fmt.Errorf("read file: %w", err))
	}
	content := string(b)
	if !strings.Contains(content, search) {
		return Failure(errs.Kind(errs.ErrNotFound, errs.UserErrorf("Text '%s' not found in %s", search, actual)))
	}
	updated := strings.ReplaceAll(content, search, replacement)
	if err := writeKeepMode(actual, updated); err != nil {
		return Failure(err)
	}
	return Success(map[string]any{
		"message":         fmt.Sprintf("Replaced '%s' with '%s' in %s", search, replacement, actual),
		"updated_content": updated,
		"file_path":       actual,
	})
}

func (f files) insert(_ context.Context, args Args) Result {
	path, err := args.String("file_path")
	if err != nil {
		return Failure(err)
	}
	n, err := args.Int("line_number")
	if err != nil {
		return Failure(err)
	}
	line, err := args.String("content")
	if err != nil {
		return Failure(err)
	}

	actual, res := f.locate(path)
	if res != nil {
		return *res
	}
	b, err := os.ReadFile(actual)
	if err != nil {
		return Failure(fmt.Errorf("read file: %w", err))
	}
	lines := splitLines(string(b))
	if n < 1 || n > len(lines)+1 {
		return Failure(errs.Kind(errs.ErrValidation, errs.UserErrorf("Invalid line number: %d. File has %d lines.", n, len(lines))))
	}
	line = strings.TrimRight(line, "\n") + "\n"
	if n == len(lines)+1 && n > 1 && !strings.HasSuffix(lines[n-2], "\n") {
		lines[n-2] += "\n"
	}
	lines = slices.Insert(lines, n-1, line)
	updated := strings.Join(lines, "")
	if err := writeKeepMode(actual, updated); err != nil {
		return Failure(err)
	}
	return Success(map[string]any{
		"message":         fmt.Sprintf("Inserted line at position %d in %s", n, actual),
		"updated_content": updated,
		"file_path":       actual,
	})
}

func (f files) view(_ context.Context, args Args) Result {
	path, err := args.String("file_path")
	if err != nil {
		return Failure(err)
	}
	actual, res := f.locate(path)
	if res != nil {
		return *res
	}
	b, err := os.ReadFile(actual)
	if err != nil {
		return Failure(fmt.Errorf("error viewing file: %w", err))
	}
	return Success(map[string]any{
		"content": strings.ToValidUTF8(string(b), "�"),
	})
}

// splitLines splits s after each newline, keeping the terminators.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeKeepMode(path, content string) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
