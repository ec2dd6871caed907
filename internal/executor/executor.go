// Package executor runs one provider attempt as a child process.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/harunnryd/coachviz/internal/errors"
	"github.com/harunnryd/coachviz/internal/logger"

	"github.com/google/shlex"
)

const (
	DefaultTimeout   = 5 * time.Minute
	DefaultImageType = "image"

	waitDelay = 2 * time.Second
)

// Request is one provider attempt.
type Request struct {
	Provider  string
	Model     string
	Template  string
	Type      string
	Prompt    string
	Output    string
	StyleGrid string
	// Env holds KEY=VALUE credentials for the provider, added to the
	// inherited environment.
	Env []string
}

// Result is what the child reported. A non-zero ExitCode is a failed
// attempt, not an execution error.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

func (r Result) Success() bool {
	return r.ExitCode == 0
}

type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// SubprocessExecutor runs a command line with the attempt passed as flags.
type SubprocessExecutor struct {
	argv    []string
	timeout time.Duration
}

// NewSubprocessExecutor parses command with shell quoting rules. An empty
// command runs the current binary's generate subcommand.
func NewSubprocessExecutor(command string, timeout time.Duration) (*SubprocessExecutor, error) {
	argv, err := shlex.Split(strings.TrimSpace(command))
	if err != nil {
		return nil, apperrors.WrapWithCategory(err, "parse executor command", apperrors.ErrConfiguration)
	}
	if len(argv) == 0 {
		self, err := os.Executable()
		if err != nil {
			return nil, apperrors.WrapWithCategory(err, "resolve executable", apperrors.ErrConfiguration)
		}
		argv = []string{self, "generate"}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SubprocessExecutor{argv: argv, timeout: timeout}, nil
}

func (e *SubprocessExecutor) Command() []string {
	return append([]string(nil), e.argv...)
}

// Args renders the attempt flags. Template and style grid are omitted when empty.
func Args(req Request) []string {
	imageType := req.Type
	if imageType == "" {
		imageType = DefaultImageType
	}
	args := []string{
		"--provider", req.Provider,
		"--model", req.Model,
		"--type", imageType,
		"--prompt", req.Prompt,
		"--output", req.Output,
	}
	if req.Template != "" {
		args = append(args, "--template", req.Template)
	}
	if req.StyleGrid != "" {
		args = append(args, "--style-grid", req.StyleGrid)
	}
	return args
}

// Execute runs the attempt and waits for it, bounded by the executor timeout.
func (e *SubprocessExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, apperrors.Wrap(err, "attempt not started")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append(append([]string(nil), e.argv[1:]...), Args(req)...)
	cmd := exec.CommandContext(runCtx, e.argv[0], args...)
	cmd.Env = append(os.Environ(), req.Env...)
	cmd.WaitDelay = waitDelay

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Debug("Executing provider attempt", "provider", req.Provider, "model", req.Model, "command", e.argv[0], "trace_id", logger.GetTraceID(ctx))

	start := time.Now()
	err := cmd.Run()
	res := Result{Output: strings.TrimSpace(output.String()), Duration: time.Since(start)}

	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, apperrors.Wrap(ctx.Err(), "attempt cancelled")
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		return res, apperrors.WrapWithCategory(runCtx.Err(), fmt.Sprintf("attempt timed out after %s", e.timeout), apperrors.ErrTransientProvider)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		return res, apperrors.WrapWithCategory(err, "start provider process", apperrors.ErrInternal)
	}
	return res, nil
}
