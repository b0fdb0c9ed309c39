package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/logging"
	"github.com/dotcommander/lmagent/internal/stream"
)

// Executor dispatches tool calls to registered handlers. It never returns a
// Go error: every fault becomes an error Result.
type Executor struct {
	Registry *Registry
	Logger   *log.Logger
}

// NewExecutor returns an executor for reg.
func NewExecutor(reg *Registry, logger *log.Logger) *Executor {
	return &Executor{Registry: reg, Logger: logging.OrDiscard(logger)}
}

// Execute parses raw as a JSON object and runs the named tool.
func (e *Executor) Execute(ctx context.Context, name, raw string) Result {
	args, err := stream.ParseArgs(raw)
	if err != nil {
		return Failure(errs.Kind(errs.ErrParse, fmt.Errorf("invalid arguments for tool %s: %w: %s", name, err, raw)))
	}
	return e.Run(ctx, name, args)
}

// Run runs the named tool with already decoded arguments.
func (e *Executor) Run(ctx context.Context, name string, args map[string]any) (result Result) {
	logger := logging.OrDiscard(e.Logger)
	tool, ok := e.Registry.Lookup(name)
	if !ok {
		return Failure(errs.Kind(errs.ErrNotFound, fmt.Errorf("unknown tool: %s", name)))
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = Failuref("tool %s panicked: %v", name, r)
		}
		logger.Debug("tool finished", "tool", name, "status", result.Status, "elapsed", time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return Failure(err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return tool.Handler(ctx, Args(args))
}
