package pipeline

import (
	"context"
	"time"

	"github.com/banshee-data/topsalign/internal/align"
	"github.com/banshee-data/topsalign/internal/baseline"
)

// LineStatus is the outcome of one line.
type LineStatus string

const (
	StatusDone    LineStatus = "done"
	StatusSkipped LineStatus = "skipped"
	StatusFailed  LineStatus = "failed"
)

// Observer receives stage spans and line outcomes for metrics and tracing.
type Observer interface {
	// Stage starts a named stage of stem and returns the context to run it
	// in plus a function ending it with the stage's error.
	Stage(ctx context.Context, stage, stem string) (context.Context, func(error))
	LineFinished(mode Mode, stem string, status LineStatus, d time.Duration)
	OffsetSamples(stem string, policy align.OffsetPolicy, n int)
}

// Ledger persists run results. Calls carry a context that outlives the
// cancellation of the run, so lines stopped by a failing sibling are still
// recorded.
type Ledger interface {
	RecordLine(ctx context.Context, stem string, status LineStatus, lineErr error) error
	RecordAlignment(ctx context.Context, lineStem, stem string, res *align.Result) error
	RecordBaseline(ctx context.Context, row baseline.Row) error
}

type nopObserver struct{}

func (nopObserver) Stage(ctx context.Context, stage, stem string) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (nopObserver) LineFinished(Mode, string, LineStatus, time.Duration) {}
func (nopObserver) OffsetSamples(string, align.OffsetPolicy, int)        {}

type nopLedger struct{}

func (nopLedger) RecordLine(context.Context, string, LineStatus, error) error { return nil }
func (nopLedger) RecordAlignment(context.Context, string, string, *align.Result) error {
	return nil
}
func (nopLedger) RecordBaseline(context.Context, baseline.Row) error { return nil }
