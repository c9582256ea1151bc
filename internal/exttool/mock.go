package exttool

import (
	"context"
	"io"
	"sync"
)

// MockCall records one command seen by a MockRunner.
type MockCall struct {
	Name  string
	Args  []string
	Dir   string
	Stdin []byte
}

// MockRunner implements Runner for testing. Handler, when set, produces
// the result for each call; otherwise every call succeeds with no output.
type MockRunner struct {
	mu      sync.Mutex
	Calls   []MockCall
	Handler func(call MockCall) (*Result, error)
}

// NewMockRunner creates a MockRunner using handler.
func NewMockRunner(handler func(call MockCall) (*Result, error)) *MockRunner {
	return &MockRunner{Handler: handler}
}

// Run records the call and returns the handler's result.
func (m *MockRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	call := MockCall{Name: cmd.Name, Args: append([]string(nil), cmd.Args...), Dir: cmd.Dir}
	if cmd.Stdin != nil {
		b, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return nil, err
		}
		call.Stdin = b
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	handler := m.Handler
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res *Result
	var err error
	if handler != nil {
		res, err = handler(call)
	}
	if res == nil {
		res = &Result{}
	}
	if err == nil && cmd.ExpectOutput && len(res.Stdout) == 0 {
		err = &ToolError{Tool: cmd.Name, Args: cmd.Args, Err: ErrNoOutput}
	}
	return res, err
}

// Names returns the tool names called so far, in order.
func (m *MockRunner) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Name
	}
	return out
}

// CallsTo returns the recorded calls to tool.
func (m *MockRunner) CallsTo(tool string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCall
	for _, c := range m.Calls {
		if c.Name == tool {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all recorded calls.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	m.Calls = nil
	m.mu.Unlock()
}
