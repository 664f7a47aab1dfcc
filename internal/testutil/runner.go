package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/field-workshops/labkit/internal/command"
)

// RunnerFunc answers one command invocation.
type RunnerFunc func(name string, args []string) (command.Result, error)

// FakeRunner records every invocation and answers through Handler.
// A nil Handler answers every command with an empty successful Result.
type FakeRunner struct {
	Handler RunnerFunc

	mu    sync.Mutex
	calls []string
}

// Run implements command.Runner.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	if err := ctx.Err(); err != nil {
		return command.Result{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	f.mu.Unlock()

	if f.Handler == nil {
		return command.Result{}, nil
	}
	return f.Handler(name, args)
}

// Calls returns the recorded command lines in order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Stdout builds a successful Result with the given output.
func Stdout(out string) command.Result {
	return command.Result{Stdout: []byte(out)}
}

// Exit builds a failing Result and the matching *command.ExitError.
func Exit(cmdLine string, code int, stderr string) (command.Result, error) {
	return command.Result{Stderr: []byte(stderr), ExitCode: code},
		&command.ExitError{Command: cmdLine, Code: code, Stderr: stderr}
}
