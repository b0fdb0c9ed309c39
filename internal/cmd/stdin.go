package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dotcommander/lmagent/internal/present"
)

// maxStdin caps how much piped input is read into a prompt.
const maxStdin = 4 << 20

// readStdin returns piped input, or "" when stdin is a terminal.
func readStdin() (string, error) {
	if present.IsInputTTY() {
		return "", nil
	}
	return readPrompt(os.Stdin)
}

func readPrompt(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxStdin))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// joinPrompt puts piped input below the prompt given as arguments.
func joinPrompt(args, piped string) string {
	switch {
	case args == "":
		return piped
	case piped == "":
		return args
	default:
		return args + "\n\n" + piped
	}
}

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}
