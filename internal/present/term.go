package present

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

var isInputTTY = sync.OnceValue(func() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
})

// IsInputTTY reports whether stdin is a terminal. A false result means the
// prompt is being piped in.
func IsInputTTY() bool { return isInputTTY() }

var isOutputTTY = sync.OnceValue(func() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
})

// IsOutputTTY reports whether stdout is a terminal.
func IsOutputTTY() bool { return isOutputTTY() }

// Interactive reports whether both ends are terminals, which the chat UI
// needs.
func Interactive() bool { return IsInputTTY() && IsOutputTTY() }

var stdoutRenderer = sync.OnceValue(lipgloss.DefaultRenderer)

// StdoutRenderer returns the lipgloss renderer for stdout.
func StdoutRenderer() *lipgloss.Renderer { return stdoutRenderer() }

var stdoutStyles = sync.OnceValue(func() Styles {
	return MakeStyles(StdoutRenderer())
})

// StdoutStyles returns styles bound to stdout.
func StdoutStyles() Styles { return stdoutStyles() }

var stderrRenderer = sync.OnceValue(func() *lipgloss.Renderer {
	return lipgloss.NewRenderer(os.Stderr, termenv.WithColorCache(true))
})

// StderrRenderer returns the lipgloss renderer for stderr.
func StderrRenderer() *lipgloss.Renderer { return stderrRenderer() }

var stderrStyles = sync.OnceValue(func() Styles {
	return MakeStyles(StderrRenderer())
})

// StderrStyles returns styles bound to stderr.
func StderrStyles() Styles { return stderrStyles() }

// HasColor reports whether r can render at least ANSI colors.
func HasColor(r *lipgloss.Renderer) bool {
	return r.ColorProfile() != termenv.Ascii
}
