package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingInput is returned before any processing when the catalog, the
// DEM or a line's orbit file does not exist.
var ErrMissingInput = errors.New("missing input")

// LineError attributes a failure to one acquisition line.
type LineError struct {
	Line int
	Stem string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Line, e.Stem, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ErrorPolicy decides what happens to the run when a line fails.
type ErrorPolicy int

const (
	// FailFast aborts the run on the first failed line.
	FailFast ErrorPolicy = iota
	// SkipLine logs the failure and continues with the next line.
	SkipLine
)

// ParseErrorPolicy accepts "fail" or "skip".
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return FailFast, nil
	case "skip":
		return SkipLine, nil
	}
	return FailFast, fmt.Errorf("unknown error policy %q (want fail or skip)", s)
}

func (p ErrorPolicy) String() string {
	if p == SkipLine {
		return "skip"
	}
	return "fail"
}
