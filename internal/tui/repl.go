package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/dotcommander/lmagent/internal/present"
)

// REPL is the line based chat used when the terminal cannot host the full
// screen UI, or when --plain is given.
type REPL struct {
	Session *Session
	In      io.Reader
	Out     io.Writer
	Err     io.Writer
	Styles  present.Styles
	Phrases []string
	Banner  string
	// InitialPrompt is sent before the first line is read.
	InitialPrompt string
	// Progress shows a thinking line on Err until output arrives.
	Progress bool
	// Interrupt makes SIGINT cancel the running turn instead of the process.
	Interrupt bool
}

// Run reads commands and prompts until exit or end of input.
func (r *REPL) Run(ctx context.Context) error {
	if r.Banner != "" {
		_, _ = fmt.Fprintln(r.Err, r.Banner)
	}
	if turns := r.Session.Controller.Store().Turns(); len(turns) > 0 {
		_, _ = fmt.Fprintln(r.Err, r.Styles.Comment.Render(fmt.Sprintf("Resumed conversation with %d turns.", len(turns))))
	} else {
		_, _ = fmt.Fprintln(r.Err, r.Styles.Comment.Render("• "+present.Greeting))
	}
	if prompt := strings.TrimSpace(r.InitialPrompt); prompt != "" {
		_, _ = fmt.Fprintln(r.Out, "\n"+r.Styles.Prompt.Render(">")+" "+prompt)
		r.turn(ctx, prompt)
	}

	scanner := bufio.NewScanner(r.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck
		}
		_, _ = fmt.Fprint(r.Out, "\n"+r.Styles.Prompt.Render(">")+" ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(r.Out)
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		switch cmd := ParseCommand(text); cmd {
		case CmdExit:
			_, _ = fmt.Fprintln(r.Err, r.Styles.Comment.Render("Exiting..."))
			return nil
		case CmdHelp:
			_, _ = fmt.Fprintln(r.Err, present.Help(r.Styles))
		case CmdSave, CmdLoad, CmdClear:
			out, err := r.Session.Exec(cmd)
			if err != nil {
				_, _ = fmt.Fprintln(r.Err, r.Styles.Warning.Render("Error: "+err.Error()))
				continue
			}
			_, _ = fmt.Fprintln(r.Err, r.Styles.Comment.Render(out))
		default:
			r.turn(ctx, text)
		}
	}
}

func (r *REPL) turn(ctx context.Context, prompt string) {
	tctx := ctx
	if r.Interrupt {
		var stop context.CancelFunc
		tctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	progress := func() {}
	if r.Progress {
		progress = startProgress(tctx, r.Err, r.Styles, r.Phrases)
	}
	sink := &WriterSink{Out: r.Out, Err: r.Err, Styles: r.Styles, OnOutput: progress}
	res, err := r.Session.Controller.Run(tctx, prompt, sink)
	progress()
	sink.EndLine()

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		_, _ = fmt.Fprintln(r.Err, r.Styles.Comment.Render("Response cancelled."))
	case err != nil:
		_, _ = fmt.Fprintln(r.Err, r.Styles.Warning.Render("Error: "+r.Session.Explain(err)))
	default:
		_, _ = fmt.Fprintln(r.Err, r.Styles.Usage.Render(FormatUsage(res)))
	}
	if err := r.Session.AfterTurn(); err != nil {
		_, _ = fmt.Fprintln(r.Err, r.Styles.Warning.Render("Could not save conversation: "+err.Error()))
	}
}

// startProgress prints a thinking phrase with the elapsed seconds to w
// until the returned stop function is called. Stop is idempotent.
func startProgress(ctx context.Context, w io.Writer, styles present.Styles, phrases []string) func() {
	phrase := "Thinking..."
	if len(phrases) > 0 {
		phrase = phrases[rand.IntN(len(phrases))] //nolint:gosec
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			_, _ = fmt.Fprintf(w, "\r%s %s",
				styles.Notice.Render(phrase),
				styles.Comment.Render(fmt.Sprintf("%.0fs", time.Since(start).Seconds())))
			select {
			case <-ticker.C:
			case <-done:
				_, _ = fmt.Fprint(w, "\r\033[K")
				return
			case <-ctx.Done():
				_, _ = fmt.Fprint(w, "\r\033[K")
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
