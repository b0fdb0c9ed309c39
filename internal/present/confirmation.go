package present

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirmation writes a badge with action followed by content, e.g.
// "SAVED conversation_history.json".
func Confirmation(w io.Writer, r *lipgloss.Renderer, action, content string) {
	if action == "" {
		action = "done"
	}
	badge := r.NewStyle().
		Foreground(lipgloss.Color("#F1F1F1")).
		Background(lipgloss.Color("#6C50FF")).
		Bold(true).
		Padding(0, 1).
		MarginRight(1).
		Render(strings.ToUpper(action))
	_, _ = fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Center, badge, content))
}
