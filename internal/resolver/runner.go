package resolver

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result is the captured outcome of one subprocess run.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes an external command to completion.
// A non-zero exit is reported in Result, not as an error; the error is
// reserved for failures to run the command at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec. A fresh process is spawned per call.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the process
	// is killed by context cancellation.
	WaitDelay time.Duration
}

// Run starts name with args and buffers stdout and stderr fully.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when the process was terminated by a signal.
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode == -1 && ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, nil
	}
	res.ExitCode = -1
	return res, err
}
