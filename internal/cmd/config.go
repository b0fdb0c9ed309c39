package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/present"
)

func newConfigCmd(rt *runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage settings",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Settings stay editable when they fail to parse.
			return editSettings(&rt.cfg)
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Open settings in $EDITOR",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return editSettings(&rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset settings to defaults",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return resetSettings(os.Stderr, &rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:       "dirs [config|cache|logs]",
		Short:     "Print the settings, history and log locations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"config", "cache", "logs"},
		RunE: func(_ *cobra.Command, args []string) error {
			printDirs(os.Stdout, &rt.cfg, args)
			return nil
		},
	})

	return configCmd
}

func editSettings(cfg *config.Config) error {
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return err //nolint:wrapcheck
	}

	c, err := editor.Cmd(config.AppName, cfg.SettingsPath)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not edit your settings file."}
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return errs.Error{Err: err, Reason: fmt.Sprintf(
			"Missing %s.",
			present.StderrStyles().InlineCode.Render("$EDITOR"),
		)}
	}

	if !cfg.Quiet {
		fmt.Fprintln(os.Stderr, "Wrote config file to:", cfg.SettingsPath)
	}
	return nil
}

// resetSettings backs the settings file up to .bak and writes the defaults.
func resetSettings(w io.Writer, cfg *config.Config) error {
	backup := cfg.SettingsPath + ".bak"
	if err := copyFile(cfg.SettingsPath, backup); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't backup config file."}
	}
	if err := os.Remove(cfg.SettingsPath); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't remove config file."}
	}
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return errs.Error{Err: err, Reason: "Couldn't write new config file."}
	}

	if !cfg.Quiet {
		s := present.StderrStyles()
		_, _ = fmt.Fprintln(w, "\nSettings restored to defaults!")
		_, _ = fmt.Fprintf(w, "\n  %s %s\n\n",
			s.Comment.Render("Your old settings have been saved to:"),
			s.Link.Render(backup),
		)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close() //nolint:wrapcheck
}

func printDirs(w io.Writer, cfg *config.Config, args []string) {
	if len(args) > 0 {
		switch args[0] {
		case "config":
			_, _ = fmt.Fprintln(w, cfg.Dir())
		case "cache":
			_, _ = fmt.Fprintln(w, cfg.CachePath)
		case "logs":
			_, _ = fmt.Fprintln(w, filepath.Dir(cfg.LogFile))
		}
		return
	}

	_, _ = fmt.Fprintf(w, "Configuration: %s\n", cfg.Dir())
	_, _ = fmt.Fprintf(w, "%*sHistory: %s\n", 6, "", cfg.CachePath)
	_, _ = fmt.Fprintf(w, "%*sLogs: %s\n", 9, "", cfg.LogFile)
}
