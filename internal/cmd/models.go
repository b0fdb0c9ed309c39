package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dotcommander/lmagent/internal/agent"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/logging"
	"github.com/dotcommander/lmagent/internal/present"
)

func newModelsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the backend serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			logger, closer, err := logging.Open(rt.cfg.LogFile, rt.cfg.LogLevel)
			if err != nil {
				return errs.Wrap(err, "Could not open the log file.")
			}
			defer closer.Close() //nolint:errcheck

			names, err := agent.New(&rt.cfg, logger).Models(cmd.Context())
			if err != nil {
				return explain(err, rt.cfg.API, "")
			}
			if len(names) == 0 {
				return errs.Error{Reason: "No models available in LM Studio."}
			}
			if rt.cfg.Pick && present.Interactive() {
				return pickModel(os.Stdout, rt.cfg.Theme, names)
			}
			printModels(os.Stdout, present.StdoutStyles(), names, rt.cfg.Model)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rt.cfg.Pick, "pick", false, flagHelp("pick"))
	return cmd
}

func printModels(w io.Writer, s present.Styles, names []string, current string) {
	for _, name := range names {
		line := name
		if name == current {
			line += s.Timeago.Render(" (default)")
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

// pickModel lets the user choose a model and prints how to make it the
// default.
func pickModel(w io.Writer, theme string, names []string) error {
	opts := make([]huh.Option[string], 0, len(names))
	for _, name := range names {
		opts = append(opts, huh.NewOption(name, name))
	}
	var picked string
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose the model:").
				Options(opts...).
				Value(&picked),
		),
	).WithTheme(themeFrom(theme)).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errs.Error{Err: err, Reason: "User canceled."}
		}
		return errs.Error{Err: err, Reason: "Prompt failed."}
	}

	s := present.StdoutStyles()
	_, _ = fmt.Fprintln(w, picked)
	_, _ = fmt.Fprintf(w, "\n%s\n  %s\n  %s\n",
		s.Comment.Render("Use it with:"),
		s.InlineCode.Render("lmagent --model "+picked),
		s.InlineCode.Render("export LMAGENT_MODEL="+picked))
	return nil
}
