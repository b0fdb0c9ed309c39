package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/dotcommander/lmagent/internal/errs"
)

// CommandOutput is the captured result of a shell command.
type CommandOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes shell commands on behalf of the model.
type Runner interface {
	Run(ctx context.Context, command string) (CommandOutput, error)
}

// ErrCommandsDenied is returned by DeniedRunner.
var ErrCommandsDenied = errs.Kind(errs.ErrValidation, errors.New("command execution is disabled"))

// DeniedRunner refuses every command.
type DeniedRunner struct{}

// Run implements Runner.
func (DeniedRunner) Run(context.Context, string) (CommandOutput, error) {
	return CommandOutput{}, ErrCommandsDenied
}

// ShellRunner runs commands through the system shell.
type ShellRunner struct {
	// Shell is the interpreter and its flag, e.g. ["bash", "-c"].
	// Defaults to sh -c, or cmd /C on Windows.
	Shell []string
	Dir   string
	// Timeout bounds a single command. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// DefaultShell returns the platform shell invocation.
func DefaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}

// Run implements Runner.
func (r ShellRunner) Run(ctx context.Context, command string) (CommandOutput, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	shell := r.Shell
	if len(shell) == 0 {
		shell = DefaultShell()
	}
	args := append(append([]string(nil), shell[1:]...), command)
	cmd := exec.CommandContext(ctx, shell[0], args...) //nolint:gosec
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	out := CommandOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("command interrupted: %w", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("run command: %w", err)
	}
	return out, nil
}

type commands struct {
	runner Runner
}

func (c commands) tool() Tool {
	return Tool{
		Name:        "execute_command",
		Description: fmt.Sprintf("Execute a shell command (%s)", runtime.GOOS),
		Parameters: object(map[string]any{
			"command": prop("string", "Command to execute"),
		}, "command"),
		Handler: c.execute,
	}
}

func (c commands) execute(ctx context.Context, args Args) Result {
	command, err := args.String("command")
	if err != nil {
		return Failure(err)
	}
	out, err := c.runner.Run(ctx, command)
	if err != nil {
		r := Failure(err)
		if out.Stdout != "" || out.Stderr != "" {
			r.Payload = map[string]any{"stdout": out.Stdout, "stderr": out.Stderr}
		}
		return r
	}

	payload := map[string]any{
		"stdout":     out.Stdout,
		"stderr":     out.Stderr,
		"returncode": out.ExitCode,
	}
	if out.ExitCode == 0 {
		payload["message"] = fmt.Sprintf("Command executed successfully: '%s'", command)
		return Success(payload)
	}
	return Result{
		Status:  StatusError,
		Message: fmt.Sprintf("Command failed with return code %d: '%s'", out.ExitCode, command),
		Payload: payload,
	}
}
