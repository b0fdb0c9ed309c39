package agent

import (
	"context"
	"strings"
	"sync"

	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/stream"
)

// reply is one scripted backend response.
type reply struct {
	chunks []proto.Chunk
	err    error
	// block makes the stream wait for cancellation after its chunks.
	block bool
	// started is closed once the stream has been requested.
	started chan struct{}
}

type fakeClient struct {
	mu       sync.Mutex
	replies  []reply
	requests []proto.Request
}

func (f *fakeClient) Request(ctx context.Context, req proto.Request) stream.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	r := reply{}
	if len(f.replies) > 0 {
		r = f.replies[0]
		f.replies = f.replies[1:]
	}
	if r.started != nil {
		close(r.started)
	}
	return &fakeStream{ctx: ctx, r: r, i: -1}
}

type fakeStream struct {
	ctx context.Context
	r   reply
	i   int
	err error
}

func (s *fakeStream) Next() bool {
	if s.i+1 < len(s.r.chunks) {
		s.i++
		return true
	}
	if s.r.block {
		<-s.ctx.Done()
		s.err = s.ctx.Err()
		return false
	}
	s.err = s.r.err
	return false
}

func (s *fakeStream) Current() (proto.Chunk, error) { return s.r.chunks[s.i], nil }
func (s *fakeStream) Err() error                    { return s.err }
func (s *fakeStream) Close() error                  { return nil }
func (s *fakeStream) DrainWarnings() []string       { return nil }

func text(s string) proto.Chunk { return proto.Chunk{Content: s} }

func call(index int, id, name, args string) proto.Chunk {
	return proto.Chunk{ToolCalls: []proto.ToolCallDelta{{Index: index, ID: id, Name: name, Arguments: args}}}
}

func usage(in, out int64) proto.Chunk {
	return proto.Chunk{Usage: &proto.Usage{InputTokens: in, OutputTokens: out}}
}

type recordingSink struct {
	mu      sync.Mutex
	text    strings.Builder
	notices []string
	states  []State
}

func (s *recordingSink) Text(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text.WriteString(delta)
}

func (s *recordingSink) Notice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, msg)
}

func (s *recordingSink) Status(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}
