package present

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
)

const markdownTabWidth = 4

// NewMarkdownRenderer returns a glamour renderer honoring GLAMOUR_STYLE.
func NewMarkdownRenderer(wordWrap int) (*glamour.TermRenderer, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("new markdown renderer: %w", err)
	}
	return r, nil
}

// RenderMarkdown renders input for a terminal, trimming trailing space and
// expanding tabs.
func RenderMarkdown(input string, wordWrap int) (string, error) {
	r, err := NewMarkdownRenderer(wordWrap)
	if err != nil {
		return "", err
	}
	return RenderWith(r, input)
}

// RenderWith renders input with r, falling back to the raw text when r is
// nil.
func RenderWith(r *glamour.TermRenderer, input string) (string, error) {
	if r == nil {
		return input, nil
	}
	out, err := r.Render(input)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	out = strings.ReplaceAll(out, "\t", strings.Repeat(" ", markdownTabWidth))
	return out + "\n", nil
}
