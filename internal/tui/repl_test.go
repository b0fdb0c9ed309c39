package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/lmagent/internal/proto"
)

func TestREPL(t *testing.T) {
	s := newSession(t, answer("Hi there", 10, 4))
	var saves int
	s.Autosave = func([]proto.Message) error {
		saves++
		return nil
	}
	var out, errOut bytes.Buffer
	r := &REPL{
		Session: s,
		In:      strings.NewReader("hello\n\n/save\nCLEAR\nhelp\n/QUIT\nnever read\n"),
		Out:     &out,
		Err:     &errOut,
		Styles:  asciiStyles(),
		Banner:  "banner",
	}
	require.NoError(t, r.Run(context.Background()))

	require.Contains(t, out.String(), "> Hi there\n")
	require.NotContains(t, out.String(), "never read")

	log := errOut.String()
	require.True(t, strings.HasPrefix(log, "banner\n"))
	require.Contains(t, log, "Master, would you like to code?")
	require.Contains(t, log, "10 in, 4 out tokens")
	require.Contains(t, log, "Conversation saved to "+s.SnapshotPath)
	require.Contains(t, log, "Conversation history cleared.")
	require.Contains(t, log, "/load")
	require.Contains(t, log, "Exiting...")

	require.Equal(t, 1, saves)
	require.Zero(t, s.Controller.Store().Len())
	require.FileExists(t, s.SnapshotPath)
}

func TestREPLEndOfInput(t *testing.T) {
	s := newSession(t)
	var out, errOut bytes.Buffer
	r := &REPL{Session: s, In: strings.NewReader(""), Out: &out, Err: &errOut, Styles: asciiStyles()}
	require.NoError(t, r.Run(context.Background()))
	require.Zero(t, s.Controller.Store().Len())
}

func TestREPLTurnError(t *testing.T) {
	// No scripted reply: the stream blocks until the context ends.
	s := newSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	var out, errOut bytes.Buffer
	r := &REPL{Session: s, Out: &out, Err: &errOut, Styles: asciiStyles()}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.turn(ctx, "hello")
	}()
	cancel()
	<-done
	require.Contains(t, errOut.String(), "Response cancelled.")
	require.Zero(t, s.Controller.Store().Len())
}

func TestWriterSink(t *testing.T) {
	var out, errOut bytes.Buffer
	var first int
	s := &WriterSink{Out: &out, Err: &errOut, Styles: asciiStyles(), OnOutput: func() { first++ }}
	s.Text("reading")
	s.Notice("[Using view_file...]")
	s.Text("done")
	s.EndLine()
	s.EndLine()
	require.Equal(t, 1, first)
	require.Equal(t, "reading\ndone\n", out.String())
	require.Equal(t, "[Using view_file...]\n", errOut.String())
}

func TestREPLInitialPrompt(t *testing.T) {
	s := newSession(t, answer("Sure.", 2, 1))
	var out, errOut bytes.Buffer
	r := &REPL{
		Session:       s,
		In:            strings.NewReader(""),
		Out:           &out,
		Err:           &errOut,
		Styles:        asciiStyles(),
		InitialPrompt: "  list the files ",
	}
	require.NoError(t, r.Run(context.Background()))
	require.Contains(t, out.String(), "> list the files\nSure.\n")
	require.Equal(t, 2, s.Controller.Store().Len())
}
