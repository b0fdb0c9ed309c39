package tui

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/dotcommander/lmagent/internal/agent"
	"github.com/dotcommander/lmagent/internal/present"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/session"
	"github.com/dotcommander/lmagent/internal/stream"
)

// scripted answers each request with the next list of chunks. An empty
// script blocks until the request is cancelled.
type scripted struct {
	mu      sync.Mutex
	replies [][]proto.Chunk
}

func (s *scripted) Request(ctx context.Context, _ proto.Request) stream.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return &scriptedStream{ctx: ctx, block: true, i: -1}
	}
	chunks := s.replies[0]
	s.replies = s.replies[1:]
	return &scriptedStream{ctx: ctx, chunks: chunks, i: -1}
}

type scriptedStream struct {
	ctx    context.Context
	chunks []proto.Chunk
	block  bool
	i      int
	err    error
}

func (s *scriptedStream) Next() bool {
	if s.i+1 < len(s.chunks) {
		s.i++
		return true
	}
	if s.block {
		<-s.ctx.Done()
		s.err = s.ctx.Err()
	}
	return false
}

func (s *scriptedStream) Current() (proto.Chunk, error) { return s.chunks[s.i], nil }
func (s *scriptedStream) Err() error                    { return s.err }
func (s *scriptedStream) Close() error                  { return nil }
func (s *scriptedStream) DrainWarnings() []string       { return nil }

func asciiRenderer() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	return r
}

func asciiStyles() present.Styles { return present.MakeStyles(asciiRenderer()) }

func newSession(t *testing.T, replies ...[]proto.Chunk) *Session {
	t.Helper()
	ctrl := agent.NewController(agent.Options{
		Client: &scripted{replies: replies},
		Store:  session.NewStore(session.DefaultCapacity),
		Model:  "local-model",
	})
	return &Session{
		Controller:   ctrl,
		API:          "lmstudio",
		SnapshotPath: t.TempDir() + "/conversation_history.json",
	}
}

func answer(text string, in, out int64) []proto.Chunk {
	return []proto.Chunk{
		{Content: text},
		{Usage: &proto.Usage{InputTokens: in, OutputTokens: out}},
	}
}
