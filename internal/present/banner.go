package present

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Greeting is shown once the backend is connected.
const Greeting = "Master, would you like to code? You will be pleased."

// Connection describes the backend for the connection panel.
type Connection struct {
	API               string
	Model             string
	Temperature       float64
	TopP              float64
	FrequencyPenalty  float64
	PresencePenalty   float64
	MaxTokens         int64
	FollowupMaxTokens int64
	Tools             []string
}

// Banner renders the connection panel.
func Banner(s Styles, c Connection) string {
	row := func(label, value string) string {
		return s.Label.Render(fmt.Sprintf("%-9s", label)) + " " + s.Value.Render(value)
	}
	lines := []string{
		GradientText(s.AppName, "lmagent"),
		row("Backend", c.API+" "+s.Success.Render("Connected")),
		row("Model", c.Model),
		row("Sampling", fmt.Sprintf("temp %.2g  top_p %.2g  freq %.2g  pres %.2g",
			c.Temperature, c.TopP, c.FrequencyPenalty, c.PresencePenalty)),
		row("Tokens", fmt.Sprintf("%d, follow-up %d", c.MaxTokens, c.FollowupMaxTokens)),
	}
	if len(c.Tools) > 0 {
		lines = append(lines, row("Tools", strings.Join(c.Tools, ", ")))
	}
	return s.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// Disconnected renders the panel shown when the backend is unreachable.
func Disconnected(s Styles, api string, err error) string {
	panel := s.Panel.BorderForeground(lipgloss.Color("#FF5F87"))
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left,
		s.Label.Render("Backend")+" "+api+" "+s.Warning.Render("Disconnected"),
		s.Warning.Render("Error: "+err.Error()),
	))
}

// Help lists the chat commands.
func Help(s Styles) string {
	cmds := [][2]string{
		{"/help", "show this help"},
		{"/save", "save the conversation to the snapshot file"},
		{"/load", "load the conversation from the snapshot file"},
		{"/clear", "forget the conversation (alias /reset)"},
		{"/exit", "leave (alias /quit)"},
	}
	var b strings.Builder
	for _, c := range cmds {
		fmt.Fprintf(&b, "  %s %s\n", s.Flag.Render(fmt.Sprintf("%-7s", c[0])), s.FlagDesc.Render(c[1]))
	}
	b.WriteString(s.Comment.Render("  Ask for files by name: view, create, edit, run commands and describe images."))
	return b.String()
}
