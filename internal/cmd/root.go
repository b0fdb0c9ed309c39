package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/present"
	"github.com/dotcommander/lmagent/internal/session"
	"github.com/dotcommander/lmagent/internal/tui"
)

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error
}

// NewRootCmd constructs the cobra root command.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error) *cobra.Command {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{build: normalizeBuildInfo(build), cfg: cfg, cfgErr: cfgErr}

	rootCmd := &cobra.Command{
		Use:           "lmagent [prompt]",
		Short:         "A coding agent for the models served by LM Studio.",
		Long:          "Ask a local model to read, write and run things in the current directory.\nWithout a prompt on a terminal, lmagent starts a chat.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return rt.runPrompt(cmd.Context(), args)
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initCommonFlags(rootCmd, &rt.cfg)

	rootCmd.AddCommand(newChatCmd(rt))
	rootCmd.AddCommand(newModelsCmd(rt))
	rootCmd.AddCommand(newHistoryCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	rootCmd.AddCommand(newRolesCmd(rt))
	rootCmd.AddCommand(newMCPCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))

	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

// runPrompt answers the prompt from args and stdin, or starts a chat when
// there is none and the terminal is interactive.
func (rt *runtime) runPrompt(ctx context.Context, args []string) error {
	piped, err := readStdin()
	if err != nil {
		return errs.Wrap(err, "Could not read your input.")
	}
	prompt := joinPrompt(strings.TrimSpace(strings.Join(args, " ")), piped)
	if prompt == "" {
		if present.Interactive() {
			return rt.runChat(ctx, chatOptions{})
		}
		return errs.Error{
			Reason: "You haven't provided any prompt input.",
			Err: errs.UserErrorf(
				"You can give your prompt as arguments and/or pipe it from STDIN.\nExample: %s",
				present.StdoutStyles().InlineCode.Render("lmagent [prompt]"),
			),
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rt.runOnce(ctx, prompt)
}

func (rt *runtime) runOnce(ctx context.Context, prompt string) error {
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

	conn, err := rt.connect(ctx, store)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	saver := newAutosaver(&rt.cfg, archive, plan)
	once := &tui.Once{
		Session: &tui.Session{
			Controller:   conn.ctrl,
			API:          conn.backend.API.Name,
			SnapshotPath: rt.cfg.SnapshotFile,
			Autosave:     saver.SaveFn(),
			Logger:       conn.logger,
		},
		Out:      os.Stdout,
		Err:      os.Stderr,
		Styles:   present.StderrStyles(),
		Phrases:  rt.cfg.ThinkingPhrases,
		Progress: present.IsOutputTTY() && !rt.cfg.Quiet,
		Quiet:    rt.cfg.Quiet,
	}
	if present.IsOutputTTY() && !rt.cfg.Raw {
		if r, err := present.NewMarkdownRenderer(rt.cfg.WordWrap); err == nil {
			once.Markdown = r
		}
	}

	_, err = once.Run(ctx, prompt)
	if err != nil {
		return explain(err, conn.backend.API.Name, conn.backend.Model.Name)
	}
	saver.report(os.Stderr, present.StderrStyles())
	return nil
}

func themeFrom(theme string) *huh.Theme {
	switch theme {
	case "dracula":
		return huh.ThemeDracula()
	case "catppuccin":
		return huh.ThemeCatppuccin()
	case "base16":
		return huh.ThemeBase16()
	default:
		return huh.ThemeCharm()
	}
}
