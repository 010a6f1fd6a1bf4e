package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// After a process is killed, wait this long for its children to release stdout
const waitDelay = time.Second

// We prefer to return stderr over the process exit code
type ExitErrorVerbose struct {
	App string
	E   *exec.ExitError
}

func (e ExitErrorVerbose) Error() string {
	if msg := strings.TrimSpace(string(e.E.Stderr)); msg != "" {
		return fmt.Sprintf("%v: %v", e.App, msg)
	}
	return fmt.Sprintf("%v: %v", e.App, e.E.Error())
}

func (e ExitErrorVerbose) Unwrap() error {
	return e.E
}

// Run executes 'name', and returns its stdout.
// The process is killed if ctx is cancelled before it exits.
func Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("Unable to find '%v' in your path (%w)", name, err)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = waitDelay
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%v was stopped: %w", name, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, ExitErrorVerbose{App: name, E: exitErr}
		}
		return nil, err
	}
	return out, nil
}

// RunCombined executes 'name', and returns stdout and stderr interleaved.
// On failure, the output is included in the error message.
func RunCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("Unable to find '%v' in your path (%w)", name, err)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = waitDelay
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%v was stopped: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%v execution failed: %w (%v)", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}
