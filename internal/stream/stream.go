// Package stream defines the backend streaming contract and reassembles
// fragmented tool calls.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/proto"
)

// ErrNoContent happens when the current event carries nothing for the caller.
var ErrNoContent = errors.New("no content")

// Client is a streaming chat completion backend.
type Client interface {
	Request(context.Context, proto.Request) Stream
}

// Stream is an in-flight completion.
type Stream interface {
	// Next advances the stream, returning false when it is done or failed.
	Next() bool

	// Current returns the current chunk, or ErrNoContent.
	Current() (proto.Chunk, error)

	Err() error
	Close() error

	// DrainWarnings returns and clears backend warnings.
	DrainWarnings() []string
}

// Completer is implemented by backends that can answer a single request
// without streaming. Image analysis needs it.
type Completer interface {
	Complete(context.Context, proto.Request) (string, error)
}

// ModelLister is implemented by backends that can report their models.
type ModelLister interface {
	Models(context.Context) ([]string, error)
}

// APIError is an HTTP level failure reported by a backend.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode == 0 {
		return msg
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), msg)
}

// Unwrap implements errors.Unwrap.
func (e *APIError) Unwrap() error { return e.Err }

// Is reports every APIError as an external fault.
func (e *APIError) Is(target error) bool { return target == errs.ErrExternal }

// Drain pumps s into acc until it ends, forwarding text deltas to onText.
// The stream is closed on return.
func Drain(ctx context.Context, s Stream, acc *Accumulator, onText func(string)) error {
	defer s.Close() //nolint:errcheck
	for s.Next() {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck
		}
		chunk, err := s.Current()
		if errors.Is(err, ErrNoContent) {
			continue
		}
		if err != nil {
			return errs.Kind(errs.ErrExternal, err)
		}
		if text := acc.Add(chunk); text != "" && onText != nil {
			onText(text)
		}
	}
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}
	if err := s.Err(); err != nil {
		return errs.Kind(errs.ErrExternal, err)
	}
	return nil
}
