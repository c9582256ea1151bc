package exttool

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ErrNoOutput is wrapped by ToolError when ExpectOutput is set and the
// tool wrote nothing to stdout.
var ErrNoOutput = errors.New("empty output")

// Logger defines the interface for debug logging.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// nopLogger is a no-op logger implementation.
type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}

// Observer is told about every finished invocation.
type Observer func(tool string, d time.Duration, err error)

// Executor runs commands as local processes.
type Executor struct {
	// Paths maps logical tool names to executables. Unmapped names are
	// looked up on PATH as is.
	Paths   map[string]string
	Logger  Logger
	Observe Observer
}

// NewExecutor creates an executor with the given binary overrides.
func NewExecutor(paths map[string]string) *Executor {
	return &Executor{
		Paths:  paths,
		Logger: nopLogger{},
	}
}

// SetLogger sets the debug logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.Logger = logger
	}
}

// Binary returns the executable used for a logical tool name.
func (e *Executor) Binary(name string) string {
	if p, ok := e.Paths[name]; ok && p != "" {
		return p
	}
	return name
}

// Run executes cmd and waits for it. Non-zero exits, start failures and
// missing expected output are returned as *ToolError alongside the result.
func (e *Executor) Run(ctx context.Context, cmd Command) (*Result, error) {
	e.Logger.Debugf("Executing: %s (dir=%s)", cmd, cmd.Dir)

	c := exec.CommandContext(ctx, e.Binary(cmd.Name), cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	runErr := c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	var err error
	switch {
	case runErr != nil:
		te := &ToolError{Tool: cmd.Name, Args: cmd.Args, Stderr: stderr.String(), Err: runErr}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			te.ExitCode = res.ExitCode
		}
		err = te
	case cmd.ExpectOutput && len(bytes.TrimSpace(res.Stdout)) == 0:
		err = &ToolError{Tool: cmd.Name, Args: cmd.Args, Stderr: stderr.String(), Err: ErrNoOutput}
	}

	if err != nil {
		e.Logger.Debugf("Command failed: %v", err)
	}
	if e.Observe != nil {
		e.Observe(cmd.Name, res.Duration, err)
	}
	return res, err
}
