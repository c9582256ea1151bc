// Package exttool runs the external processing binaries as typed commands
// with captured stdout, stderr and exit status.
package exttool

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Command is one collaborator invocation.
type Command struct {
	// Name is the logical tool name (for example "calc_dop_orb"). The
	// executor may map it to a different binary.
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir   string
	Stdin io.Reader
	// ExpectOutput makes an empty stdout a failure.
	ExpectOutput bool
}

// String renders the command the way a shell user would type it.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Lines splits stdout into non-empty trimmed lines.
func (r *Result) Lines() []string {
	var out []string
	for _, l := range strings.Split(string(r.Stdout), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ToolError reports a collaborator that exited non-zero, could not be
// started, or produced no output where output was required.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Tool)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ", stderr: " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }
