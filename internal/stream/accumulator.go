package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/google/uuid"
)

// ParseError is a tool call whose arguments are not a JSON object.
type ParseError struct {
	Index int
	Name  string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v: %s", e.Name, e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches errs.ErrParse.
func (e *ParseError) Is(target error) bool { return target == errs.ErrParse }

// Call is a sealed tool call.
type Call struct {
	proto.ToolCall
	Args map[string]any
	Err  error
}

type partial struct {
	id   string
	name string
	args strings.Builder
}

// Accumulator reassembles streamed chunks into text and tool calls.
// It is not safe for concurrent use.
type Accumulator struct {
	text  strings.Builder
	calls []*partial
	usage *proto.Usage
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add consumes a chunk and returns its text delta.
func (a *Accumulator) Add(chunk proto.Chunk) string {
	a.text.WriteString(chunk.Content)
	for _, d := range chunk.ToolCalls {
		if d.Index < 0 {
			continue
		}
		for len(a.calls) <= d.Index {
			a.calls = append(a.calls, &partial{})
		}
		p := a.calls[d.Index]
		if p.id == "" && d.ID != "" {
			p.id = d.ID
		}
		if d.Name != "" {
			p.name = d.Name
		}
		p.args.WriteString(d.Arguments)
	}
	if chunk.Usage != nil {
		u := *chunk.Usage
		a.usage = &u
	}
	return chunk.Content
}

// Text returns all text received so far.
func (a *Accumulator) Text() string { return a.text.String() }

// Usage returns the last usage reported, if any.
func (a *Accumulator) Usage() (proto.Usage, bool) {
	if a.usage == nil {
		return proto.Usage{}, false
	}
	return *a.usage, true
}

// Finalize seals the tool calls in index order. A call whose arguments do not
// parse carries a *ParseError and does not affect the others.
func (a *Accumulator) Finalize() []Call {
	calls := make([]Call, 0, len(a.calls))
	for i, p := range a.calls {
		raw := p.args.String()
		if p.name == "" && strings.TrimSpace(raw) == "" {
			continue
		}
		id := p.id
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		call := Call{
			ToolCall: proto.ToolCall{
				ID:       id,
				Type:     proto.ToolTypeFunction,
				Function: proto.Function{Name: p.name, Arguments: raw},
			},
		}
		args, err := ParseArgs(raw)
		if err != nil {
			call.Err = &ParseError{Index: i, Name: p.name, Raw: raw, Err: err}
		} else {
			call.Args = args
		}
		calls = append(calls, call)
	}
	return calls
}

// ParseArgs decodes a tool argument buffer. Blank input is an empty object.
func ParseArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode arguments: trailing data")
	}
	if args == nil {
		return nil, fmt.Errorf("decode arguments: not an object")
	}
	return args, nil
}
