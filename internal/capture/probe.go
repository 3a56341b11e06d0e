package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"streamkeep/internal/services"
)

// Executor abstracts one-shot command execution for testability.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ProbeResult is the outcome of one liveness check.
type ProbeResult struct {
	Live    bool     `json:"live"`
	Plugin  string   `json:"plugin,omitempty"`
	Streams []string `json:"streams,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Prober checks whether an address is currently transmitting.
type Prober interface {
	Probe(ctx context.Context, address string) (ProbeResult, error)
}

// ProbeOption configures a LivenessProbe.
type ProbeOption func(*LivenessProbe)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) ProbeOption {
	return func(p *LivenessProbe) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// LivenessProbe runs `<binary> <address> --json` and inspects the stream list.
type LivenessProbe struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// NewProbe constructs a probe. A non-positive timeout defaults to 30s.
func NewProbe(binary string, timeout time.Duration, opts ...ProbeOption) *LivenessProbe {
	if strings.TrimSpace(binary) == "" {
		binary = "streamlink"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := &LivenessProbe{binary: binary, timeout: timeout, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type probeOutput struct {
	Plugin  string                     `json:"plugin"`
	Streams map[string]json.RawMessage `json:"streams"`
	Error   string                     `json:"error"`
}

// Probe reports live when the tool exits zero and lists at least one stream.
// A non-zero exit means offline. Timeouts, spawn failures, and unparsable
// output are returned as probe errors.
func (p *LivenessProbe) Probe(ctx context.Context, address string) (ProbeResult, error) {
	if strings.TrimSpace(address) == "" {
		return ProbeResult{}, services.Wrap(services.ErrProbe, "capture", "probe", "address is required", nil)
	}
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.exec.Output(probeCtx, p.binary, []string{address, "--json"})
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) && probeCtx.Err() == nil {
			result := ProbeResult{Reason: exitErr.Error()}
			var parsed probeOutput
			if json.Unmarshal(out, &parsed) == nil && parsed.Error != "" {
				result.Reason = parsed.Error
			}
			return result, nil
		}
		if probeCtx.Err() != nil && ctx.Err() == nil {
			return ProbeResult{}, services.Wrap(services.ErrProbe, "capture", "probe", fmt.Sprintf("timed out after %s", p.timeout), err)
		}
		return ProbeResult{}, services.Wrap(services.ErrProbe, "capture", "probe", "run "+p.binary, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return ProbeResult{}, services.Wrap(services.ErrProbe, "capture", "probe", "parse json output", err)
	}
	result := ProbeResult{Plugin: parsed.Plugin, Reason: parsed.Error}
	for name := range parsed.Streams {
		result.Streams = append(result.Streams, name)
	}
	sort.Strings(result.Streams)
	result.Live = len(result.Streams) > 0
	return result, nil
}

// IsLive is a convenience wrapper around Probe.
func (p *LivenessProbe) IsLive(ctx context.Context, address string) (bool, error) {
	result, err := p.Probe(ctx, address)
	return result.Live, err
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return out, &ExitError{Code: exitErr.ExitCode()}
		}
		return out, err
	}
	return out, nil
}
