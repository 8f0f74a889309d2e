package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultRebootCommand escalates through su, matching rooted devices.
var DefaultRebootCommand = []string{"su", "-c", "reboot"}

// ErrUnsupported is returned by rebooters that cannot work on this OS.
var ErrUnsupported = errors.New("reboot not supported on this platform")

// ExecError reports a privileged command that failed to run or exited
// non-zero.
type ExecError struct {
	Command []string
	Output  string
	Err     error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Command, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// CommandRebooter reboots by running an external command.
type CommandRebooter struct {
	command []string
}

// NewCommandRebooter returns a rebooter for command, or for
// DefaultRebootCommand when command is empty.
func NewCommandRebooter(command []string) *CommandRebooter {
	if len(command) == 0 {
		command = DefaultRebootCommand
	}
	return &CommandRebooter{command: append([]string(nil), command...)}
}

// Command returns the argv the rebooter runs.
func (r *CommandRebooter) Command() []string {
	return append([]string(nil), r.command...)
}

// Reboot runs the command and waits for it. A successful reboot usually
// kills the process before Reboot returns.
func (r *CommandRebooter) Reboot(ctx context.Context) error {
	if !isCommandAvailable(r.command[0]) {
		return &ExecError{Command: r.command, Err: exec.ErrNotFound}
	}

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ExecError{Command: r.command, Output: string(out), Err: err}
	}
	return nil
}
