package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/morozRed/unitsmith/internal/failure"
)

// ErrToolNotFound is returned when the binary is not on PATH.
var ErrToolNotFound = errors.New("tool not found")

// maxOutput bounds captured output; the tail is kept.
const maxOutput = 64 << 10

// Result is one finished process invocation.
type Result struct {
	Command  string        `json:"command"`
	Dir      string        `json:"dir,omitempty"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// Runner executes external tools with a hard timeout.
type Runner struct {
	LookPath func(file string) (string, error)
	// WaitDelay bounds how long Run waits for output pipes after the
	// process is killed.
	WaitDelay time.Duration
}

// NewRunner returns a runner resolving binaries from PATH.
func NewRunner() *Runner {
	return &Runner{LookPath: exec.LookPath, WaitDelay: 500 * time.Millisecond}
}

// Run executes name with args in dir. A non-zero exit is reported through
// Result.ExitCode with a nil error; a timeout yields a Timeout failure and
// a missing binary wraps ErrToolNotFound.
func (r *Runner) Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (Result, error) {
	res := Result{Command: strings.TrimSpace(name + " " + strings.Join(args, " ")), Dir: dir}

	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	bin, err := lookPath(name)
	if err != nil {
		return res, fmt.Errorf("%s: %w", name, ErrToolNotFound)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := &tailBuffer{limit: maxOutput}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = r.WaitDelay

	started := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(started)
	res.Output = out.String()

	if ctx.Err() != nil {
		res.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		res.ExitCode = -1
		if res.TimedOut {
			return res, &failure.Error{Kind: failure.Timeout, Message: fmt.Sprintf("%s exceeded %s", name, timeout), Output: res.Output}
		}
		return res, failure.Wrap(failure.IOFailure, ctx.Err(), "%s cancelled", name)
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		res.ExitCode = 0
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, failure.Wrap(failure.IOFailure, runErr, "run %s", name)
	}
	return res, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
		t.truncated = true
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	if t.truncated {
		return "[output truncated]\n" + t.buf.String()
	}
	return t.buf.String()
}
