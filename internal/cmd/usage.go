package cmd

import (
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"regexp"
	"slices"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/dotcommander/lmagent/internal/present"
)

var examples = map[string]string{
	"Explain a file":             `lmagent "explain what main.go does"`,
	"Review a diff":              `git diff | lmagent "review this change and point out bugs"`,
	"Fix a failing test":         `go test ./... 2>&1 | lmagent "fix the failing test"`,
	"Pick up where you left off": `lmagent chat --continue-last`,
}

func randomExample() string {
	keys := slices.Sorted(maps.Keys(examples))
	return keys[rand.IntN(len(keys))] //nolint:gosec
}

var (
	quoteRe = regexp.MustCompile(`"([^"\\]|\\.)*"`)
	pipeRe  = regexp.MustCompile(`\|`)
)

func cheapHighlighting(s present.Styles, code string) string {
	code = quoteRe.ReplaceAllStringFunc(code, func(x string) string { return s.Quote.Render(x) })
	return pipeRe.ReplaceAllStringFunc(code, func(x string) string { return s.Pipe.Render(x) })
}

func useLine(cmd *cobra.Command) string {
	name := cmd.CommandPath()
	if present.StdoutRenderer().ColorProfile() == termenv.TrueColor {
		name = present.GradientText(present.StdoutStyles().AppName, name)
	}
	args := "[OPTIONS] [PROMPT]"
	if cmd.HasParent() {
		args = "[OPTIONS]"
		if cmd.HasAvailableSubCommands() {
			args = "[COMMAND]"
		}
	}
	return fmt.Sprintf("%s %s", name, present.StdoutStyles().CliArgs.Render(args))
}

func usageFunc(cmd *cobra.Command) error {
	writeUsage(cmd.OutOrStdout(), present.StdoutStyles(), cmd)
	return nil
}

func writeUsage(w io.Writer, s present.Styles, cmd *cobra.Command) {
	_, _ = fmt.Fprintf(w, "Usage:\n  %s\n", useLine(cmd))

	if cmd.HasAvailableSubCommands() {
		_, _ = fmt.Fprintln(w, "\nCommands:")
		for _, sub := range cmd.Commands() {
			if !sub.IsAvailableCommand() {
				continue
			}
			_, _ = fmt.Fprintf(w, "  %-18s %s\n", s.Flag.Render(sub.Name()), s.FlagDesc.Render(sub.Short))
		}
	}

	_, _ = fmt.Fprintln(w, "\nOptions:")
	visit := func(f *flag.Flag) {
		if f.Hidden {
			return
		}
		if f.Shorthand == "" {
			_, _ = fmt.Fprintf(w, "  %-44s %s\n", s.Flag.Render("--"+f.Name), s.FlagDesc.Render(f.Usage))
			return
		}
		_, _ = fmt.Fprintf(w, "  %s%s %-40s %s\n",
			s.Flag.Render("-"+f.Shorthand),
			s.FlagComma,
			s.Flag.Render("--"+f.Name),
			s.FlagDesc.Render(f.Usage),
		)
	}
	cmd.LocalFlags().VisitAll(visit)
	cmd.InheritedFlags().VisitAll(visit)

	if code, ok := examples[cmd.Example]; ok {
		_, _ = fmt.Fprintf(w, "\nExample:\n  %s\n  %s\n",
			s.Comment.Render("# "+cmd.Example),
			cheapHighlighting(s, code),
		)
	}
}
