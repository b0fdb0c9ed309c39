package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/dotcommander/lmagent/internal/agent"
	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/logging"
	"github.com/dotcommander/lmagent/internal/present"
	"github.com/dotcommander/lmagent/internal/session"
)

const lmStudioHint = "Please make sure LM Studio is running with the server enabled on port 1234"

// connection is a ready controller plus what it was built from.
type connection struct {
	ctrl    *agent.Controller
	backend agent.Backend
	logger  *log.Logger
	closer  io.Closer
}

func (c *connection) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close() //nolint:wrapcheck
}

// connect resolves the backend and builds a controller over store.
func (rt *runtime) connect(ctx context.Context, store *session.Store) (*connection, error) {
	logger, closer, err := logging.Open(rt.cfg.LogFile, rt.cfg.LogLevel)
	if err != nil {
		return nil, errs.Wrap(err, "Could not open the log file.")
	}

	svc := agent.New(&rt.cfg, logger)
	b, err := svc.Backend(ctx)
	if err != nil {
		_ = closer.Close()
		logger.Error("backend", "api", rt.cfg.API, "err", err)
		return nil, explain(err, rt.cfg.API, rt.cfg.Model)
	}
	ctrl, err := svc.NewController(ctx, b, store)
	if err != nil {
		_ = closer.Close()
		return nil, explain(err, b.API.Name, b.Model.Name)
	}
	return &connection{ctrl: ctrl, backend: b, logger: logger, closer: closer}, nil
}

func explain(err error, api, model string) error {
	var eerr errs.Error
	if errors.As(err, &eerr) {
		return err
	}
	return agent.Explain(err, api, model)
}

// banner renders the connection panel for c.
func (rt *runtime) banner(s present.Styles, c *connection) string {
	return present.Banner(s, present.Connection{
		API:               c.backend.API.Name,
		Model:             c.backend.Model.Name,
		Temperature:       rt.cfg.Temperature,
		TopP:              rt.cfg.TopP,
		FrequencyPenalty:  rt.cfg.FrequencyPenalty,
		PresencePenalty:   rt.cfg.PresencePenalty,
		MaxTokens:         rt.cfg.MaxTokens,
		FollowupMaxTokens: rt.cfg.FollowupMaxTokens,
		Tools:             c.ctrl.Tools(),
	})
}

// printDisconnected shows the disconnected panel for a failed connect.
func printDisconnected(w io.Writer, s present.Styles, api string, err error) {
	var eerr errs.Error
	shown := err
	if errors.As(err, &eerr) && eerr.Reason != "" {
		shown = errors.New(eerr.Reason)
	}
	_, _ = fmt.Fprintln(w, present.Disconnected(s, api, shown))
	if api == config.DefaultAPI {
		_, _ = fmt.Fprintln(w, s.Comment.Render(lmStudioHint))
	}
}
