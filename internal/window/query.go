package window

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultQueryTimeout bounds a single invocation of a compositor query tool.
const DefaultQueryTimeout = 2 * time.Second

// Runner runs an external query tool and returns its stdout.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools as child processes, killing them when Timeout elapses.
type ExecRunner struct {
	Timeout time.Duration
}

// Output implements Runner.
func (r ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	// Reap stragglers that keep stdout open after the kill.
	cmd.WaitDelay = 500 * time.Millisecond
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s", name, timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// queryJSON runs a tool and decodes its output. Failures are logged and yield
// the zero value, so callers always continue with an empty result.
func queryJSON[T any](ctx context.Context, r Runner, log *zerolog.Logger, decode func([]byte) (T, error), name string, args ...string) (T, bool) {
	var zero T

	out, err := r.Output(ctx, name, args...)
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("Query failed, using empty result")
		return zero, false
	}
	if len(bytes.TrimSpace(out)) == 0 {
		log.Warn().Str("tool", name).Strs("args", args).Msg("Query returned no output")
		return zero, false
	}

	v, err := decode(out)
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Strs("args", args).Msg("Query output malformed, using empty result")
		return zero, false
	}
	return v, true
}
