package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"

	"github.com/dotcommander/lmagent/internal/agent"
	"github.com/dotcommander/lmagent/internal/present"
)

// Once answers a single prompt, e.g. `lmagent "explain main.go"` or a piped
// prompt.
type Once struct {
	Session *Session
	Out     io.Writer
	Err     io.Writer
	Styles  present.Styles
	// Markdown, when set, buffers the answer and prints it rendered once the
	// turn ends. Otherwise text is streamed as it arrives.
	Markdown *glamour.TermRenderer
	Phrases  []string
	Progress bool
	// Quiet hides the usage line.
	Quiet bool
}

// Run sends prompt and writes the answer.
func (o *Once) Run(ctx context.Context, prompt string) (agent.Result, error) {
	progress := func() {}
	if o.Progress {
		progress = startProgress(ctx, o.Err, o.Styles, o.Phrases)
	}
	defer progress()

	var buf bytes.Buffer
	out := o.Out
	if o.Markdown != nil {
		out = &buf
	}
	sink := &WriterSink{Out: out, Err: o.Err, Styles: o.Styles, OnOutput: progress}
	res, err := o.Session.Controller.Run(ctx, prompt, sink)
	progress()
	sink.EndLine()

	if o.Markdown != nil && buf.Len() > 0 {
		rendered, rerr := present.RenderWith(o.Markdown, buf.String())
		if rerr != nil {
			rendered = buf.String()
		}
		_, _ = io.WriteString(o.Out, rendered)
	}
	if aerr := o.Session.AfterTurn(); aerr != nil {
		_, _ = fmt.Fprintln(o.Err, o.Styles.Warning.Render("Could not save conversation: "+aerr.Error()))
	}
	if err != nil {
		return res, err
	}
	if !o.Quiet {
		_, _ = fmt.Fprintln(o.Err, o.Styles.Usage.Render(FormatUsage(res)))
	}
	return res, nil
}
