package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/present"
	"github.com/dotcommander/lmagent/internal/session"
	"github.com/dotcommander/lmagent/internal/tui"
)

type chatOptions struct {
	initial string
	plain   bool
}

func newChatCmd(rt *runtime) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [initial prompt]",
		Short: "Start an interactive chat",
		Long:  "Start a multi-turn chat with the model. Type /help for commands, /exit or ctrl+c to quit.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			// SIGINT cancels turns; it is handled by the UI.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()
			opts.initial = strings.TrimSpace(strings.Join(args, " "))
			return rt.runChat(ctx, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.plain, "plain", false, flagHelp("plain"))
	return cmd
}

func (rt *runtime) runChat(ctx context.Context, opts chatOptions) error {
	archive, err := openArchive(&rt.cfg)
	if err != nil {
		return err
	}
	defer archive.Close() //nolint:errcheck

	plan, err := planSession(&rt.cfg, archive)
	if err != nil {
		return err
	}
	store := session.NewStore(rt.cfg.HistoryLimit)
	store.Append(plan.Turns...)

	styles := present.StderrStyles()
	conn, err := rt.connect(ctx, store)
	if err != nil {
		printDisconnected(os.Stderr, styles, rt.cfg.API, err)
		return err
	}
	defer conn.Close() //nolint:errcheck

	saver := newAutosaver(&rt.cfg, archive, plan)
	sess := &tui.Session{
		Controller:   conn.ctrl,
		API:          conn.backend.API.Name,
		SnapshotPath: rt.cfg.SnapshotFile,
		Autosave:     saver.SaveFn(),
		Logger:       conn.logger,
	}
	banner := rt.banner(styles, conn)

	if opts.plain || !present.Interactive() {
		repl := &tui.REPL{
			Session:       sess,
			In:            os.Stdin,
			Out:           os.Stdout,
			Err:           os.Stderr,
			Styles:        styles,
			Phrases:       rt.cfg.ThinkingPhrases,
			Banner:        banner,
			InitialPrompt: opts.initial,
			Progress:      present.IsOutputTTY(),
			Interrupt:     true,
		}
		err = repl.Run(ctx)
	} else {
		chat := tui.NewChat(ctx, sess, tui.ChatOptions{
			Renderer:      present.StderrRenderer(),
			WordWrap:      rt.cfg.WordWrap,
			Raw:           rt.cfg.Raw,
			Phrases:       rt.cfg.ThinkingPhrases,
			Banner:        banner,
			InitialPrompt: opts.initial,
		})
		p := tea.NewProgram(chat, tea.WithAltScreen(), tea.WithOutput(os.Stderr), tea.WithContext(ctx))
		if _, err = p.Run(); errors.Is(err, tea.ErrProgramKilled) {
			err = nil
		}
		if err != nil {
			err = errs.Wrap(err, "Couldn't start Bubble Tea program.")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	saver.report(os.Stderr, styles)
	return nil
}
