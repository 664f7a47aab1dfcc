// Package command runs external programs (kubectl, systemctl, the lab agent)
// behind an interface so callers can be tested without them.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/field-workshops/labkit/logger"
)

// waitDelay bounds how long output pipes are drained after a command is killed
const waitDelay = 2 * time.Second

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Output returns stdout with surrounding whitespace removed.
func (r Result) Output() string {
	return strings.TrimSpace(string(r.Stdout))
}

// Runner executes a program with arguments and waits for it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExitError is returned when a command ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.Code, e.Stderr)
	}
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.Code)
}

// IsExitError reports whether err is a non-zero exit of a command that started.
func IsExitError(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger  logger.Logger
	dir     string
	env     []string
	timeout time.Duration
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithDir sets the working directory of every command.
func WithDir(dir string) Option {
	return func(r *ExecRunner) { r.dir = dir }
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *ExecRunner) { r.env = append(r.env, env...) }
}

// WithTimeout bounds every command. Zero means no bound beyond ctx.
func WithTimeout(timeout time.Duration) Option {
	return func(r *ExecRunner) { r.timeout = timeout }
}

// NewExecRunner creates a runner that logs through log.
func NewExecRunner(log logger.Logger, opts ...Option) *ExecRunner {
	if log == nil {
		log = logger.Nop()
	}
	r := &ExecRunner{logger: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts name with args and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir
	cmd.WaitDelay = waitDelay
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	line := commandLine(name, args)
	r.logger.Debug().Str("command", line).Msg("Running command")

	start := time.Now()
	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			r.logger.Error().
				Str("command", line).
				Int("exit_code", res.ExitCode).
				Str("output", strings.TrimSpace(stderr.String())).
				Msg("Command failed")
			return res, &ExitError{Command: line, Code: res.ExitCode, Stderr: strings.TrimSpace(stderr.String())}
		}
		r.logger.Error().Err(err).Str("command", line).Msg("Error executing command")
		return res, fmt.Errorf("failed to run %q: %w", line, err)
	}

	r.logger.Debug().
		Str("command", line).
		Dur("elapsed", time.Since(start)).
		Msg("Command completed successfully")
	return res, nil
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
