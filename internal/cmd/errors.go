package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/present"
)

func handleError(err error) {
	drainStdin()
	printError(os.Stderr, present.StderrStyles(), err)
}

func printError(w io.Writer, s present.Styles, err error) {
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) {
		_, _ = fmt.Fprintf(w, format+"%s\n\n",
			fmt.Sprintf("Check out %s %s", s.InlineCode.Render("lmagent -h"), s.Comment.Render("for help.")),
			fmt.Sprintf(ferr.ReasonFormat(), s.InlineCode.Render(ferr.Flag())),
		)
		return
	}

	if errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintf(w, format, s.ErrPadding.Render(s.Comment.Render("Request cancelled.")))
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) {
		args := []any{s.ErrPadding.Render(s.ErrorHeader.String(), merr.Reason)}
		if merr.Err != nil && !errors.Is(merr.Err, huh.ErrUserAborted) {
			format += "%s\n\n"
			args = append(args, s.ErrPadding.Render(s.ErrorDetails.Render(err.Error())))
		}
		_, _ = fmt.Fprintf(w, format, args...)
		return
	}

	_, _ = fmt.Fprintf(w, format, s.ErrPadding.Render(s.ErrorDetails.Render(err.Error())))
}
