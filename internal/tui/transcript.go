package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/dotcommander/lmagent/internal/agent"
	"github.com/dotcommander/lmagent/internal/present"
	"github.com/dotcommander/lmagent/internal/proto"
)

// Transcript accumulates the rendered conversation. Assistant text is kept
// raw until the block ends so markdown is rendered once per block.
type Transcript struct {
	styles present.Styles
	glam   *glamour.TermRenderer
	done   strings.Builder
	live   strings.Builder
}

// NewTranscript returns a transcript. A nil glam keeps assistant text raw.
func NewTranscript(styles present.Styles, glam *glamour.TermRenderer) *Transcript {
	return &Transcript{styles: styles, glam: glam}
}

// User adds a user turn.
func (t *Transcript) User(text string) {
	t.Flush()
	t.done.WriteString(t.styles.Prompt.Render(">") + " " + t.styles.User.Render(text) + "\n\n")
}

// Text adds an assistant delta to the live block.
func (t *Transcript) Text(delta string) { t.live.WriteString(delta) }

// HasLive reports whether assistant text is pending.
func (t *Transcript) HasLive() bool { return t.live.Len() > 0 }

// Notice adds a status line such as a tool notice.
func (t *Transcript) Notice(msg string) {
	t.Flush()
	t.done.WriteString(t.styles.Notice.Render(msg) + "\n")
}

// Info adds a plain comment line.
func (t *Transcript) Info(msg string) {
	t.Flush()
	t.done.WriteString(t.styles.Comment.Render(msg) + "\n\n")
}

// Error adds a failure line.
func (t *Transcript) Error(msg string) {
	t.Flush()
	t.done.WriteString(t.styles.Warning.Render("Error: "+msg) + "\n\n")
}

// Block adds pre-rendered content, like the banner.
func (t *Transcript) Block(s string) {
	t.Flush()
	t.done.WriteString(s + "\n\n")
}

// Usage ends a turn with its statistics line.
func (t *Transcript) Usage(res agent.Result) {
	t.Flush()
	t.done.WriteString(t.styles.Usage.Render(FormatUsage(res)) + "\n\n")
}

// Flush renders and commits the live assistant block.
func (t *Transcript) Flush() {
	if t.live.Len() == 0 {
		return
	}
	t.done.WriteString(t.render(t.live.String()))
	t.done.WriteString("\n")
	t.live.Reset()
}

// Reset drops everything.
func (t *Transcript) Reset() {
	t.done.Reset()
	t.live.Reset()
}

// String returns the committed transcript plus the live block.
func (t *Transcript) String() string {
	if t.live.Len() == 0 {
		return t.done.String()
	}
	return t.done.String() + t.render(t.live.String())
}

// Replay renders stored turns, e.g. when a conversation is resumed. Tool
// turns are shown by their call notices only.
func (t *Transcript) Replay(turns []proto.Message) {
	for _, m := range turns {
		switch m.Role {
		case proto.RoleUser:
			t.User(m.Content)
		case proto.RoleAssistant:
			if m.Content != "" {
				t.Text(m.Content)
				t.Flush()
			}
			for _, call := range m.ToolCalls {
				t.Notice(fmt.Sprintf("[Using %s...]", call.Function.Name))
			}
		}
	}
}

func (t *Transcript) render(md string) string {
	out, err := present.RenderWith(t.glam, md)
	if err != nil || t.glam == nil {
		return strings.TrimRight(md, "\n") + "\n"
	}
	return out
}

// FormatUsage describes a finished turn. Token counts are only shown when
// the backend reported them.
func FormatUsage(res agent.Result) string {
	var parts []string
	// Some servers send an all-zero usage block; treat it as missing.
	if u := res.Usage(); res.HasUsage && u.Total() > 0 {
		parts = append(parts, fmt.Sprintf("%d in, %d out tokens", u.InputTokens, u.OutputTokens))
		if tps := res.TokensPerSecond(); tps > 0 {
			parts = append(parts, fmt.Sprintf("%.1f tok/s", tps))
		}
	}
	switch res.ToolCalls {
	case 0:
	case 1:
		parts = append(parts, "1 tool call")
	default:
		parts = append(parts, fmt.Sprintf("%d tool calls", res.ToolCalls))
	}
	parts = append(parts, res.Elapsed.Round(100*time.Millisecond).String())
	return strings.Join(parts, " · ")
}

// formatElapsedClock renders d as mm:ss, or hh:mm:ss past an hour.
func formatElapsedClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours, minutes, seconds := total/3600, (total%3600)/60, total%60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
