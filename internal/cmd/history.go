package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	timeago "github.com/caarlos0/timea.go"
	"github.com/charmbracelet/huh"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/present"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/storage"
)

func newHistoryCmd(rt *runtime) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved conversations",
	}

	historyCmd.AddCommand(newHistoryListCmd(rt))
	historyCmd.AddCommand(newHistoryShowCmd(rt))
	historyCmd.AddCommand(newHistoryDeleteCmd(rt))
	historyCmd.AddCommand(newHistoryPruneCmd(rt))

	return historyCmd
}

// withArchive runs fn over the archive after draining stdin.
func (rt *runtime) withArchive(fn func(*storage.Archive) error) error {
	if rt.cfgErr != nil {
		return rt.cfgErr
	}
	drainStdin()
	archive, err := openArchive(&rt.cfg)
	if err != nil {
		return err
	}
	defer archive.Close() //nolint:errcheck
	return fn(archive)
}

func newHistoryListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return rt.withArchive(func(a *storage.Archive) error {
				sessions := a.DB().List()
				if len(sessions) == 0 {
					fmt.Fprintln(os.Stderr, "No conversations found.")
					return nil
				}
				if present.Interactive() && !rt.cfg.Raw {
					selectFromList(rt.cfg.Theme, sessions)
					return nil
				}
				printList(os.Stdout, present.StdoutStyles(), sessions)
				return nil
			})
		},
	}
}

func newHistoryShowCmd(rt *runtime) *cobra.Command {
	var last bool
	showCmd := &cobra.Command{
		Use:   "show [id-or-title]",
		Short: "Show a saved conversation",
		Args:  cobra.MaximumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return completeSessions(&rt.cfg, toComplete)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			in := ""
			if len(args) == 1 {
				in = args[0]
			}
			if in == "" && !last {
				return errs.Wrap(errs.UserErrorf("give an ID or title, or use --last"), "Missing conversation.")
			}
			return rt.withArchive(func(a *storage.Archive) error {
				render := present.IsOutputTTY() && !rt.cfg.Raw
				return showSession(os.Stdout, a, in, render, rt.cfg.WordWrap)
			})
		},
	}
	showCmd.Flags().BoolVarP(&last, "last", "l", false, flagHelp("last"))
	return showCmd
}

func newHistoryDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id-or-title> [more...]",
		Short: "Delete saved conversations",
		Args:  cobra.MinimumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return completeSessions(&rt.cfg, toComplete)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			return rt.withArchive(func(a *storage.Archive) error {
				return deleteSessions(os.Stderr, &rt.cfg, a, args)
			})
		},
	}
}

func newHistoryPruneCmd(rt *runtime) *cobra.Command {
	var olderThan time.Duration
	var yes bool
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete conversations older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errs.Wrap(errs.UserErrorf("missing --older-than"), "Could not delete old conversations.")
			}
			return rt.withArchive(func(a *storage.Archive) error {
				return pruneSessions(os.Stderr, &rt.cfg, a, olderThan, yes)
			})
		},
	}
	pruneCmd.Flags().Var(newDurationFlag(0, &olderThan), "older-than", flagHelp("older-than"))
	pruneCmd.Flags().BoolVarP(&yes, "yes", "y", false, flagHelp("yes"))
	return pruneCmd
}

func completeSessions(cfg *config.Config, toComplete string) ([]string, cobra.ShellCompDirective) {
	if cfg.CachePath == "" {
		return nil, cobra.ShellCompDirectiveDefault
	}
	db, err := storage.Open(cfg.CachePath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveDefault
	}
	defer db.Close() //nolint:errcheck
	return db.Completions(toComplete), cobra.ShellCompDirectiveNoFileComp
}

// showSession prints a saved conversation; in == "" means the latest one.
func showSession(w io.Writer, a *storage.Archive, in string, render bool, wordWrap int) error {
	var turns []proto.Message
	var err error
	if in == "" {
		_, turns, err = a.LoadLatest()
	} else {
		_, turns, err = a.Load(in)
	}
	if err != nil {
		return errs.Wrap(err, "There was an error loading the conversation.")
	}

	out := proto.Conversation(turns).String()
	if render {
		if formatted, err := present.RenderMarkdown(out, wordWrap); err == nil {
			out = formatted
		}
	}
	_, _ = fmt.Fprint(w, out)
	return nil
}

func deleteSessions(w io.Writer, cfg *config.Config, a *storage.Archive, targets []string) error {
	for _, in := range targets {
		s, err := a.DB().Find(in)
		if err != nil {
			return errs.Wrap(err, "Couldn't find conversation to delete.")
		}
		if err := a.Delete(s); err != nil {
			return errs.Wrap(err, "Couldn't delete conversation.")
		}
		if !cfg.Quiet {
			present.Confirmation(w, present.StderrRenderer(), "deleted", storage.ShortID(s.ID)+" "+s.Title)
		}
	}
	return nil
}

func pruneSessions(w io.Writer, cfg *config.Config, a *storage.Archive, olderThan time.Duration, yes bool) error {
	old := a.DB().ListOlderThan(olderThan)
	if len(old) == 0 {
		if !cfg.Quiet {
			_, _ = fmt.Fprintln(w, "No conversations found.")
		}
		return nil
	}

	if !yes && !cfg.Quiet {
		printList(w, present.StderrStyles(), old)
		if !present.Interactive() {
			_, _ = fmt.Fprintln(w)
			//nolint:wrapcheck
			return errs.UserErrorf(
				"To delete the conversations above, run: %s",
				strings.Join(append(os.Args, "--yes"), " "),
			)
		}
		var confirm bool
		if err := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete conversations older than %s?", olderThan)).
				Description(fmt.Sprintf("This will delete all the %d conversations listed above.", len(old))).
				Value(&confirm),
		)).WithTheme(themeFrom(cfg.Theme)).Run(); err != nil {
			return errs.Wrap(err, "Couldn't delete old conversations.")
		}
		if !confirm {
			//nolint:wrapcheck
			return errs.UserErrorf("Aborted by user")
		}
	}

	pruned, err := a.Prune(olderThan)
	if err != nil {
		return errs.Wrap(err, "Couldn't delete old conversations.")
	}
	if !cfg.Quiet {
		present.Confirmation(w, present.StderrRenderer(), "deleted", fmt.Sprintf("%d conversations", len(pruned)))
	}
	return nil
}

func sessionLine(s present.Styles, sess storage.Session) string {
	line := s.SHA.Render(storage.ShortID(sess.ID)) + " " +
		s.ConversationList.Render(sess.Title, s.Timeago.Render(timeago.Of(sess.UpdatedAt)))
	if sess.Model != "" {
		line += s.Comment.Render(sess.Model)
	}
	if sess.API != "" {
		line += s.Comment.Render(" (" + sess.API + ")")
	}
	return line
}

func selectFromList(theme string, sessions []storage.Session) {
	s := present.StdoutStyles()
	opts := make([]huh.Option[string], 0, len(sessions))
	for _, sess := range sessions {
		opts = append(opts, huh.NewOption(sessionLine(s, sess), sess.ID))
	}

	var selected string
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Conversations").
				Value(&selected).
				Options(opts...),
		),
	).WithTheme(themeFrom(theme)).Run(); err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		return
	}

	_ = clipboard.WriteAll(selected)
	termenv.Copy(selected)
	present.Confirmation(os.Stdout, present.StdoutRenderer(), "copied", selected)

	fmt.Println(s.Comment.Render("You can use this conversation ID with the following commands:"))
	short := storage.ShortID(selected)
	for _, c := range []string{
		"lmagent chat --continue " + short,
		"lmagent history show " + short,
		"lmagent history delete " + short,
	} {
		fmt.Printf("  %s\n", s.InlineCode.Render(c))
	}
}

func printList(w io.Writer, s present.Styles, sessions []storage.Session) {
	for _, sess := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			s.SHA.Render(storage.ShortID(sess.ID)),
			sess.Title,
			s.Timeago.Render(timeago.Of(sess.UpdatedAt)),
		)
	}
}
