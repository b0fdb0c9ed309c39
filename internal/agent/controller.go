package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/logging"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/session"
	"github.com/dotcommander/lmagent/internal/stream"
	"github.com/dotcommander/lmagent/internal/tools"
)

// ErrBusy is returned by Run while another turn is in progress.
var ErrBusy = errors.New("a turn is already in progress")

// State is the phase of the current turn.
type State int32

// States.
const (
	StateIdle State = iota
	StateStreaming
	StateExecutingTools
	StateFollowup
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateExecutingTools:
		return "executing tools"
	case StateFollowup:
		return "follow-up"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Sink receives the output of a turn.
type Sink interface {
	Text(delta string)
	Notice(msg string)
	Status(State)
}

// Sampling holds the generation parameters sent with every request.
type Sampling struct {
	Temperature       *float64
	TopP              *float64
	FrequencyPenalty  *float64
	PresencePenalty   *float64
	ToolChoice        string
	ParallelToolCalls *bool
	MaxTokens         int64
	FollowupMaxTokens int64
	User              string
}

// Options configures a Controller.
type Options struct {
	Client   stream.Client
	Registry *tools.Registry
	Store    *session.Store
	Model    string
	System   []string
	Sampling Sampling
	// RequestTimeout bounds each streaming request. Zero means no limit.
	RequestTimeout time.Duration
	Logger         *log.Logger
}

// Result describes a finished turn.
type Result struct {
	Primary   proto.Usage
	Followup  proto.Usage
	ToolCalls int
	Elapsed   time.Duration
	// HasUsage is false when the backend reported no token counts.
	HasUsage bool
}

// Usage returns the combined usage of both requests.
func (r Result) Usage() proto.Usage { return r.Primary.Add(r.Followup) }

// TokensPerSecond returns the output rate over the whole turn.
func (r Result) TokensPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Usage().OutputTokens) / r.Elapsed.Seconds()
}

// Controller runs conversation turns against a backend, one at a time.
type Controller struct {
	opts     Options
	executor *tools.Executor
	logger   *log.Logger
	busy     atomic.Bool
	state    atomic.Int32
}

// NewController returns a controller. Registry and Store default to empty
// ones.
func NewController(opts Options) *Controller {
	if opts.Registry == nil {
		opts.Registry = tools.NewRegistry()
	}
	if opts.Store == nil {
		opts.Store = session.NewStore(session.DefaultCapacity)
	}
	logger := logging.OrDiscard(opts.Logger)
	return &Controller{
		opts:     opts,
		executor: tools.NewExecutor(opts.Registry, logger),
		logger:   logger,
	}
}

// Store returns the conversation history.
func (c *Controller) Store() *session.Store { return c.opts.Store }

// Model returns the model name sent with requests.
func (c *Controller) Model() string { return c.opts.Model }

// Tools returns the registered tool names.
func (c *Controller) Tools() []string { return c.opts.Registry.Names() }

// State returns the current phase.
func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) setState(s State, sink Sink) {
	c.state.Store(int32(s))
	sink.Status(s)
}

// Run sends input as a user turn and drives it to completion. Completed
// turns are committed to the store as they finish; a cancelled or failed
// request never leaves a partial turn behind.
func (c *Controller) Run(ctx context.Context, input string, sink Sink) (Result, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer c.busy.Store(false)

	if sink == nil {
		sink = nopSink{}
	}
	defer c.setState(StateIdle, sink)

	start := time.Now()
	var res Result

	user := proto.Message{Role: proto.RoleUser, Content: input}
	messages := c.messages(c.opts.Store.Turns(), user)

	c.setState(StateStreaming, sink)
	acc, err := c.stream(ctx, messages, c.opts.Sampling.MaxTokens, sink)
	if acc != nil {
		res.Primary, res.HasUsage = acc.Usage()
	}
	if err != nil {
		res.Elapsed = time.Since(start)
		return res, err
	}

	calls := acc.Finalize()
	assistant := proto.Message{Role: proto.RoleAssistant, Content: acc.Text()}
	for _, call := range calls {
		assistant.ToolCalls = append(assistant.ToolCalls, call.ToolCall)
	}
	turns := []proto.Message{user}
	if assistant.Content != "" || len(assistant.ToolCalls) > 0 {
		turns = append(turns, assistant)
	}
	c.commit(sink, turns...)

	if len(calls) == 0 {
		res.Elapsed = time.Since(start)
		return res, nil
	}

	c.setState(StateExecutingTools, sink)
	res.ToolCalls = len(calls)
	toolTurns := c.runTools(ctx, calls, sink)
	c.commit(sink, toolTurns...)
	if err := ctx.Err(); err != nil {
		res.Elapsed = time.Since(start)
		return res, err //nolint:wrapcheck
	}

	c.setState(StateFollowup, sink)
	followup := slices.Concat(messages, []proto.Message{assistant}, toolTurns)
	acc, err = c.stream(ctx, followup, c.opts.Sampling.FollowupMaxTokens, sink)
	if acc != nil {
		if u, ok := acc.Usage(); ok {
			res.Followup = u
			res.HasUsage = true
		}
	}
	if err != nil {
		res.Elapsed = time.Since(start)
		return res, err
	}
	if n := len(acc.Finalize()); n > 0 {
		c.logger.Warn("ignoring tool calls requested in follow-up", "count", n)
	}
	if text := acc.Text(); text != "" {
		c.commit(sink, proto.Message{Role: proto.RoleAssistant, Content: text})
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (c *Controller) commit(sink Sink, turns ...proto.Message) {
	if len(turns) == 0 {
		return
	}
	if c.opts.Store.Append(turns...) {
		sink.Notice(session.TrimNotice)
	}
}

func (c *Controller) runTools(ctx context.Context, calls []stream.Call, sink Sink) []proto.Message {
	turns := make([]proto.Message, 0, len(calls))
	for _, call := range calls {
		name := call.Function.Name
		sink.Notice(fmt.Sprintf("[Using %s...]", name))
		var result tools.Result
		switch {
		case call.Err != nil:
			result = tools.Failure(call.Err)
		case ctx.Err() != nil:
			result = tools.Failure(fmt.Errorf("tool %s not run: %w", name, ctx.Err()))
		default:
			result = c.executor.Run(ctx, name, call.Args)
		}
		if result.Display != "" {
			sink.Notice(result.Display)
		}
		if result.OK() {
			c.logger.Debug("tool call", "id", call.ID, "tool", name, "status", result.Status)
		} else {
			c.logger.Warn("tool call failed", "id", call.ID, "tool", name, "status", result.Status, "message", result.Message)
		}
		turns = append(turns, proto.Message{
			Role:       proto.RoleTool,
			ToolCallID: call.ID,
			Content:    result.String(),
		})
	}
	return turns
}

// messages builds a request: system prompt, history and the new turn.
// Tool turns left at the head of the history by trimming have lost their
// assistant turn and are skipped.
func (c *Controller) messages(history []proto.Message, next ...proto.Message) []proto.Message {
	out := make([]proto.Message, 0, len(c.opts.System)+len(history)+len(next))
	for _, s := range c.opts.System {
		out = append(out, proto.Message{Role: proto.RoleSystem, Content: s})
	}
	i := 0
	for i < len(history) && history[i].Role == proto.RoleTool {
		i++
	}
	out = append(out, history[i:]...)
	return append(out, next...)
}

func (c *Controller) request(messages []proto.Message, maxTokens int64) proto.Request {
	s := c.opts.Sampling
	req := proto.Request{
		Model:             c.opts.Model,
		Messages:          messages,
		Tools:             c.opts.Registry.Schemas(),
		Temperature:       s.Temperature,
		TopP:              s.TopP,
		FrequencyPenalty:  s.FrequencyPenalty,
		PresencePenalty:   s.PresencePenalty,
		ToolChoice:        s.ToolChoice,
		ParallelToolCalls: s.ParallelToolCalls,
		User:              s.User,
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return req
}

func (c *Controller) stream(ctx context.Context, messages []proto.Message, maxTokens int64, sink Sink) (*stream.Accumulator, error) {
	reqCtx := ctx
	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	acc := stream.NewAccumulator()
	st := c.opts.Client.Request(reqCtx, c.request(messages, maxTokens))
	err := stream.Drain(reqCtx, st, acc, sink.Text)
	for _, w := range st.DrainWarnings() {
		sink.Notice(w)
	}
	if err == nil {
		return acc, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return acc, ctxErr //nolint:wrapcheck
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return acc, errs.Kind(errs.ErrExternal, fmt.Errorf("request timed out after %s", c.opts.RequestTimeout))
	}
	c.logger.Error("stream failed", "err", err)
	return acc, err
}

type nopSink struct{}

func (nopSink) Text(string)   {}
func (nopSink) Notice(string) {}
func (nopSink) Status(State)  {}
