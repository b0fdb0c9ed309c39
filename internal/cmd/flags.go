package cmd

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/duration"
	"github.com/spf13/cobra"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/present"
	"github.com/dotcommander/lmagent/internal/storage"
)

var helpText = map[string]string{
	"api":                 "OpenAI compatible REST API (lmstudio, openai, ollama, etc.)",
	"model":               "Model to use, defaults to the first model the server reports",
	"role":                "System role to use",
	"temp":                "Temperature (randomness) of results, from 0.0 to 2.0",
	"topp":                "TopP, an alternative to temperature that narrows response, from 0.0 to 1.0",
	"max-tokens":          "Maximum number of tokens in the first response of a turn",
	"followup-max-tokens": "Maximum number of tokens in the response after tool results",
	"request-timeout":     "Timeout for a single model request; e.g. 90s, 5m",
	"no-vision":           "Disable the describe_image tool",
	"no-commands":         "Disable the execute_command tool",
	"history-limit":       "Number of turns kept in the conversation",
	"quiet":               "Quiet mode (hide usage lines and save notices)",
	"raw":                 "Print raw text instead of rendered Markdown",
	"no-cache":            "Disables saving conversations",
	"http-proxy":          "HTTP proxy to use for API requests",
	"theme":               "Theme for interactive prompts (charm, dracula, catppuccin, base16)",
	"word-wrap":           "Wrap rendered output at the specified width",
	"continue":            "Continue from the conversation with the given ID or title",
	"continue-last":       "Continue the last conversation",
	"title":               "Saves the conversation with the given title",
	"plain":               "Use the line based chat instead of the full screen UI",
	"pick":                "Pick the default model from a list",
	"older-than":          "Delete conversations older than the given duration; e.g. 24h, 7d",
	"last":                "Show the last saved conversation",
	"yes":                 "Do not ask for confirmation",
}

func flagHelp(name string) string {
	return present.StdoutStyles().FlagDesc.Render(helpText[name])
}

// initCommonFlags registers the flags shared by the one-shot prompt and chat.
func initCommonFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&cfg.API, "api", "a", cfg.API, flagHelp("api"))
	flags.StringVarP(&cfg.Model, "model", "m", cfg.Model, flagHelp("model"))
	flags.StringVarP(&cfg.Role, "role", "R", cfg.Role, flagHelp("role"))
	flags.Float64Var(&cfg.Temperature, "temp", cfg.Temperature, flagHelp("temp"))
	flags.Float64Var(&cfg.TopP, "topp", cfg.TopP, flagHelp("topp"))
	flags.Int64Var(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, flagHelp("max-tokens"))
	flags.Int64Var(&cfg.FollowupMaxTokens, "followup-max-tokens", cfg.FollowupMaxTokens, flagHelp("followup-max-tokens"))
	flags.Var(newDurationFlag(cfg.RequestTimeout, &cfg.RequestTimeout), "request-timeout", flagHelp("request-timeout"))
	flags.Var(newNegatedFlag(&cfg.Vision), "no-vision", flagHelp("no-vision"))
	flags.Var(newNegatedFlag(&cfg.AllowCommands), "no-commands", flagHelp("no-commands"))
	flags.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, flagHelp("history-limit"))
	flags.StringVarP(&cfg.Continue, "continue", "c", "", flagHelp("continue"))
	flags.BoolVarP(&cfg.ContinueLast, "continue-last", "C", false, flagHelp("continue-last"))
	flags.StringVarP(&cfg.Title, "title", "t", cfg.Title, flagHelp("title"))
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, flagHelp("quiet"))
	flags.BoolVarP(&cfg.Raw, "raw", "r", cfg.Raw, flagHelp("raw"))
	flags.BoolVar(&cfg.NoCache, "no-cache", cfg.NoCache, flagHelp("no-cache"))
	flags.StringVarP(&cfg.HTTPProxy, "http-proxy", "x", cfg.HTTPProxy, flagHelp("http-proxy"))
	flags.StringVar(&cfg.Theme, "theme", cfg.Theme, flagHelp("theme"))
	flags.IntVar(&cfg.WordWrap, "word-wrap", cfg.WordWrap, flagHelp("word-wrap"))
	flags.SortFlags = false
	for _, name := range []string{"no-vision", "no-commands"} {
		flags.Lookup(name).NoOptDefVal = "true"
	}

	cmd.MarkFlagsMutuallyExclusive("continue", "continue-last")

	_ = cmd.RegisterFlagCompletionFunc("continue", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if cfg.CachePath == "" {
			return nil, cobra.ShellCompDirectiveDefault
		}
		db, err := storage.Open(cfg.CachePath)
		if err != nil {
			return nil, cobra.ShellCompDirectiveDefault
		}
		defer db.Close() //nolint:errcheck
		return db.Completions(toComplete), cobra.ShellCompDirectiveDefault
	})
	_ = cmd.RegisterFlagCompletionFunc("role", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return roleNames(cfg, toComplete), cobra.ShellCompDirectiveDefault
	})
}

// flagParseError turns pflag's parse errors into something nicer to print.
type flagParseError struct {
	err    error
	reason string
	flag   string
}

func (f flagParseError) Error() string        { return f.err.Error() }
func (f flagParseError) Unwrap() error        { return f.err }
func (f flagParseError) ReasonFormat() string { return f.reason }
func (f flagParseError) Flag() string         { return f.flag }

var invalidArgRe = regexp.MustCompile(`^invalid argument ".*" for "(.*)" flag: `)

func newFlagParseError(err error) flagParseError {
	var reason, flag string
	s := err.Error()
	switch {
	case strings.HasPrefix(s, "flag needs an argument:"):
		reason = "Flag %s needs an argument."
		flag = lastField(s)
	case strings.HasPrefix(s, "unknown flag:"):
		reason = "Flag %s is missing."
		flag = lastField(s)
	case strings.HasPrefix(s, "unknown shorthand flag:"):
		reason = "Short flag %s is missing."
		flag = lastField(s)
	case strings.HasPrefix(s, "invalid argument"):
		reason = "Flag %s have an invalid argument."
		if m := invalidArgRe.FindStringSubmatch(s); len(m) > 1 {
			flag = m[1]
		}
	default:
		reason = s
	}
	return flagParseError{err: err, reason: reason, flag: flag}
}

func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// durationFlag accepts day and week units on top of time.ParseDuration.
type durationFlag struct {
	d *time.Duration
}

func newDurationFlag(val time.Duration, p *time.Duration) *durationFlag {
	*p = val
	return &durationFlag{d: p}
}

func (f *durationFlag) Set(s string) error {
	d, err := duration.Parse(s)
	if err != nil {
		return err //nolint:wrapcheck
	}
	*f.d = d
	return nil
}

func (f *durationFlag) String() string { return f.d.String() }
func (f *durationFlag) Type() string   { return "duration" }

// negatedFlag backs --no-x flags that switch a setting off.
type negatedFlag struct {
	b *bool
}

func newNegatedFlag(p *bool) *negatedFlag { return &negatedFlag{b: p} }

func (f *negatedFlag) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err //nolint:wrapcheck
	}
	*f.b = !v
	return nil
}

func (f *negatedFlag) String() string { return strconv.FormatBool(!*f.b) }
func (f *negatedFlag) Type() string   { return "bool" }
