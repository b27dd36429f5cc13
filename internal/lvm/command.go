package lvm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oshokin/os-updater/internal/logger"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandError describes a failed LVM command.
type CommandError struct {
	// Command is the full command line.
	Command string
	// Stderr is what the command printed on its error output.
	Stderr string
	// Err is the underlying execution error.
	Err error
}

// Error implements error.
func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("LVM command '%s' failed: %v", e.Command, e.Err)
	}

	return fmt.Sprintf("LVM command '%s' returned an error: %s", e.Command, e.Stderr)
}

// Unwrap returns the underlying execution error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs the command on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	commandLine := strings.Join(append([]string{name}, args...), " ")
	logger.DebugKV(ctx, "Will run", "command", commandLine)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &CommandError{
			Command: commandLine,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}

	return stdout.Bytes(), nil
}

// IsCommandError reports whether err comes from a failed LVM command.
func IsCommandError(err error) bool {
	var commandErr *CommandError

	return errors.As(err, &commandErr)
}
