package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"streamkeep/internal/logging"
)

// Process is a started capture subprocess.
type Process interface {
	// Wait blocks until the process exits and has been reaped.
	Wait() error
	PID() int
}

// Runner starts capture processes. Cancelling ctx must stop the process.
type Runner interface {
	Start(ctx context.Context, binary string, args []string) (Process, error)
}

// ExecRunner runs the capture tool with os/exec. Tool output is forwarded to
// the logger at debug level.
type ExecRunner struct {
	// Grace is how long an interrupted process may take to exit before it is killed.
	Grace  time.Duration
	Logger *slog.Logger
}

// Start launches binary. On context cancellation the process receives an
// interrupt and, after Grace, a kill.
func (r ExecRunner) Start(ctx context.Context, binary string, args []string) (Process, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	grace := r.Grace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	cmd.WaitDelay = grace

	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	out := &lineLogger{logger: logger}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	// An interrupted capture that exits cleanly still reports the context
	// error; treat that as a normal stop.
	if err != nil && p.cmd.ProcessState != nil && p.cmd.ProcessState.Success() {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
	}
	return err
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// lineLogger forwards complete lines written by the subprocess.
type lineLogger struct {
	logger  *slog.Logger
	pending []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.pending = append(l.pending, p...)
	for {
		idx := bytes.IndexByte(l.pending, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(l.pending[:idx]))
		l.pending = l.pending[idx+1:]
		if line != "" {
			l.logger.Debug("capture output", logging.String("line", line))
		}
	}
	return len(p), nil
}

var _ io.Writer = (*lineLogger)(nil)
