package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dotcommander/lmagent/internal/agent"
	"github.com/dotcommander/lmagent/internal/present"
)

type textMsg string

type noticeMsg string

type statusMsg agent.State

// teaSink forwards controller output to the Bubble Tea loop. Output of a
// cancelled turn is dropped.
type teaSink struct {
	ctx    context.Context
	events chan<- tea.Msg
}

func (s teaSink) send(msg tea.Msg) {
	select {
	case s.events <- msg:
	case <-s.ctx.Done():
	}
}

func (s teaSink) Text(delta string) { s.send(textMsg(delta)) }
func (s teaSink) Notice(msg string) { s.send(noticeMsg(msg)) }
func (s teaSink) Status(st agent.State) { s.send(statusMsg(st)) }

// WriterSink streams assistant text to Out and notices to Err. It serves the
// line REPL and one-shot prompts.
type WriterSink struct {
	Out    io.Writer
	Err    io.Writer
	Styles present.Styles
	// OnOutput runs before the first text or notice is written, e.g. to stop
	// a progress line.
	OnOutput func()

	mu      sync.Mutex
	midLine bool
	wrote   bool
}

func (s *WriterSink) first() {
	if !s.wrote && s.OnOutput != nil {
		s.OnOutput()
	}
	s.wrote = true
}

// Text implements agent.Sink.
func (s *WriterSink) Text(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.first()
	_, _ = io.WriteString(s.Out, delta)
	s.midLine = !strings.HasSuffix(delta, "\n")
}

// Notice implements agent.Sink.
func (s *WriterSink) Notice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.first()
	if s.midLine {
		_, _ = io.WriteString(s.Out, "\n")
		s.midLine = false
	}
	_, _ = fmt.Fprintln(s.Err, s.Styles.Notice.Render(msg))
}

// Status implements agent.Sink.
func (s *WriterSink) Status(agent.State) {}

// EndLine terminates unfinished assistant text.
func (s *WriterSink) EndLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.midLine {
		_, _ = io.WriteString(s.Out, "\n")
		s.midLine = false
	}
}
