package tui

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/ordered"

	"github.com/dotcommander/lmagent/internal/agent"
	"github.com/dotcommander/lmagent/internal/present"
)

type chatState int

const (
	chatInputState chatState = iota
	chatBusyState
)

// ChatOptions configures the interactive chat.
type ChatOptions struct {
	Renderer *lipgloss.Renderer
	WordWrap int
	// Raw disables markdown rendering of responses.
	Raw           bool
	Phrases       []string
	Banner        string
	InitialPrompt string
}

// Chat is the Bubble Tea model for the interactive REPL. Each turn runs the
// controller in its own goroutine and streams its output back as messages.
type Chat struct {
	state      chatState
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	transcript *Transcript
	renderer   *lipgloss.Renderer
	styles     present.Styles

	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	events  chan tea.Msg

	phrases []string
	phrase  string
	status  agent.State
	started time.Time

	width  int
	height int

	renderScheduled bool
	dirty           bool
	initialPrompt   string
}

// NewChat creates the chat model. Turns already in the session store are
// shown first.
func NewChat(ctx context.Context, s *Session, opts ChatOptions) *Chat {
	r := opts.Renderer
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	styles := present.MakeStyles(r)

	var glam *glamour.TermRenderer
	if !opts.Raw {
		glam, _ = present.NewMarkdownRenderer(opts.WordWrap)
	}

	ti := textinput.New()
	ti.Prompt = styles.Prompt.Render("> ")
	ti.Placeholder = "Ask anything, or /help"
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Notice))

	c := &Chat{
		state:         chatInputState,
		input:         ti,
		viewport:      viewport.New(0, 0),
		spinner:       sp,
		transcript:    NewTranscript(styles, glam),
		renderer:      r,
		styles:        styles,
		session:       s,
		ctx:           ctx,
		phrases:       opts.Phrases,
		initialPrompt: opts.InitialPrompt,
		dirty:         true,
	}
	if opts.Banner != "" {
		c.transcript.Block(opts.Banner)
	}
	if turns := s.Controller.Store().Turns(); len(turns) > 0 {
		c.transcript.Replay(turns)
	} else {
		c.transcript.Info("• " + present.Greeting)
	}
	return c
}

type chatSubmitMsg struct {
	prompt string
}

type turnDoneMsg struct {
	res agent.Result
	err error
}

type chatRenderMsg struct{}

type elapsedTickMsg struct{}

// Init implements tea.Model.
func (c *Chat) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if c.initialPrompt != "" {
		prompt := c.initialPrompt
		cmds = append(cmds, func() tea.Msg { return chatSubmitMsg{prompt: prompt} })
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.input.Width = max(msg.Width-4, 1)
		c.resizeViewport()
		c.refreshViewport()
		return c, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if c.state == chatBusyState {
				c.cancelTurn()
				return c, nil
			}
			return c, tea.Quit
		case "enter":
			if c.state != chatInputState {
				return c, nil
			}
			return c, c.submit(c.input.Value())
		}

	case chatSubmitMsg:
		return c, c.startTurn(msg.prompt)

	case textMsg:
		c.transcript.Text(string(msg))
		c.dirty = true
		cmds := []tea.Cmd{c.listen()}
		if !c.renderScheduled {
			c.renderScheduled = true
			cmds = append(cmds, c.renderTickCmd())
		}
		return c, tea.Batch(cmds...)

	case noticeMsg:
		c.transcript.Notice(string(msg))
		c.refreshViewport()
		return c, c.listen()

	case statusMsg:
		c.status = agent.State(msg)
		return c, c.listen()

	case turnDoneMsg:
		c.finishTurn(msg.res, msg.err)
		return c, nil

	case spinner.TickMsg:
		if c.state != chatBusyState {
			return c, nil
		}
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		return c, cmd

	case elapsedTickMsg:
		if c.state == chatBusyState {
			return c, c.elapsedTickCmd()
		}
		return c, nil

	case chatRenderMsg:
		c.renderScheduled = false
		if c.dirty {
			c.refreshViewport()
		}
		return c, nil
	}

	var cmds []tea.Cmd
	if c.state == chatInputState {
		var cmd tea.Cmd
		c.input, cmd = c.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return c, tea.Batch(cmds...)
}

// View implements tea.Model.
func (c *Chat) View() string {
	if c.width == 0 || c.height == 0 {
		return ""
	}
	divider := c.styles.Comment.Render(strings.Repeat("─", max(c.width, 1)))
	footer := c.input.View()
	if c.state == chatBusyState {
		footer = c.statusLine(time.Now())
	}
	return c.viewport.View() + "\n" + divider + "\n" + footer
}

// Transcript returns the rendered conversation.
func (c *Chat) Transcript() string { return c.transcript.String() }

func (c *Chat) submit(value string) tea.Cmd {
	text := strings.TrimSpace(value)
	if text == "" {
		return nil
	}
	c.input.SetValue("")
	switch cmd := ParseCommand(text); cmd {
	case CmdExit:
		return tea.Quit
	case CmdHelp:
		c.transcript.Block(present.Help(c.styles))
	case CmdSave, CmdLoad, CmdClear:
		out, err := c.session.Exec(cmd)
		if err != nil {
			c.transcript.Error(err.Error())
			break
		}
		if cmd == CmdClear {
			c.transcript.Reset()
		}
		if cmd == CmdLoad {
			c.transcript.Reset()
			c.transcript.Replay(c.session.Controller.Store().Turns())
		}
		c.transcript.Info(out)
	default:
		return func() tea.Msg { return chatSubmitMsg{prompt: text} }
	}
	c.refreshViewport()
	return nil
}

func (c *Chat) startTurn(prompt string) tea.Cmd {
	if c.state == chatBusyState {
		return nil
	}
	c.transcript.User(prompt)
	c.state = chatBusyState
	c.status = agent.StateStreaming
	c.started = time.Now()
	c.phrase = c.pickPhrase()
	c.refreshViewport()

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel
	events := make(chan tea.Msg, 64)
	c.events = events
	ctrl := c.session.Controller
	go func() {
		res, err := ctrl.Run(ctx, prompt, teaSink{ctx: ctx, events: events})
		events <- turnDoneMsg{res: res, err: err}
	}()
	return tea.Batch(c.listen(), c.spinner.Tick, c.elapsedTickCmd())
}

func (c *Chat) listen() tea.Cmd {
	events := c.events
	if events == nil {
		return nil
	}
	return func() tea.Msg { return <-events }
}

func (c *Chat) cancelTurn() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Chat) finishTurn(res agent.Result, err error) {
	c.cancelTurn()
	c.cancel = nil
	c.events = nil
	c.state = chatInputState
	c.status = agent.StateIdle

	switch {
	case errors.Is(err, context.Canceled):
		c.transcript.Flush()
		c.transcript.Info("Response cancelled.")
	case err != nil:
		c.transcript.Error(c.session.Explain(err))
	default:
		c.transcript.Usage(res)
	}
	if err := c.session.AfterTurn(); err != nil {
		c.transcript.Error("could not save conversation: " + err.Error())
	}
	c.refreshViewport()
}

func (c *Chat) pickPhrase() string {
	if len(c.phrases) == 0 {
		return "Thinking..."
	}
	return c.phrases[rand.IntN(len(c.phrases))] //nolint:gosec
}

func (c *Chat) statusLine(now time.Time) string {
	label := c.phrase
	switch c.status {
	case agent.StateExecutingTools:
		label = "Running tools..."
	case agent.StateFollowup:
		if !c.transcript.HasLive() {
			label = "Reading tool results..."
		}
	}
	elapsed := formatElapsedClock(now.Sub(c.started))
	return c.spinner.View() + " " + c.styles.Notice.Render(label) + " " + c.styles.Comment.Render("["+elapsed+"]  ctrl+c to cancel")
}

func (c *Chat) refreshViewport() {
	content := strings.TrimRight(c.transcript.String(), "\n") + "\n"
	if c.width > 0 {
		content = c.renderer.NewStyle().MaxWidth(c.width).Render(content)
	}
	atBottom := c.viewport.AtBottom() || c.viewport.TotalLineCount() <= c.viewport.Height
	c.viewport.SetContent(content)
	if atBottom {
		c.viewport.GotoBottom()
	}
	c.dirty = false
}

func (c *Chat) resizeViewport() {
	const footerLines = 2
	c.viewport.Width = c.width
	c.viewport.Height = ordered.Max(c.height-footerLines, 1)
}

func (c *Chat) renderTickCmd() tea.Cmd {
	const renderInterval = 33 * time.Millisecond
	return tea.Tick(renderInterval, func(time.Time) tea.Msg { return chatRenderMsg{} })
}

func (c *Chat) elapsedTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return elapsedTickMsg{} })
}
