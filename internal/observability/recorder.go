package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/banshee-data/topsalign/internal/align"
	"github.com/banshee-data/topsalign/internal/pipeline"
	"github.com/banshee-data/topsalign/internal/timeutil"
)

const instrumentationName = "github.com/banshee-data/topsalign/internal/pipeline"

// Recorder feeds pipeline events into a Collector and a tracer.
// It implements pipeline.Observer.
type Recorder struct {
	Metrics *Collector
	Tracer  trace.Tracer
	Clock   timeutil.Clock
}

var _ pipeline.Observer = (*Recorder)(nil)

// NewRecorder returns a Recorder using tp for spans. Either argument may be
// nil.
func NewRecorder(metrics *Collector, tp trace.TracerProvider) *Recorder {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Recorder{
		Metrics: metrics,
		Tracer:  tp.Tracer(instrumentationName),
		Clock:   timeutil.RealClock{},
	}
}

// Stage opens a span named after the stage.
func (r *Recorder) Stage(ctx context.Context, stage, stem string) (context.Context, func(error)) {
	ctx, span := r.Tracer.Start(ctx, stage, trace.WithAttributes(
		attribute.String("topsalign.stage", stage),
		attribute.String("topsalign.stem", stem),
	))
	start := r.Clock.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.Metrics.ObserveStage(stage, r.Clock.Since(start), err)
	}
}

// LineFinished counts the line outcome.
func (r *Recorder) LineFinished(mode pipeline.Mode, stem string, status pipeline.LineStatus, d time.Duration) {
	r.Metrics.ObserveLine(mode, status, d)
}

// OffsetSamples records the sample count of a slave subswath.
func (r *Recorder) OffsetSamples(stem string, policy align.OffsetPolicy, n int) {
	r.Metrics.SetOffsetSamples(stem, policy, n)
}

// ObserveTool records one external tool invocation.
func (r *Recorder) ObserveTool(tool string, d time.Duration, err error) {
	r.Metrics.ObserveTool(tool, d, err)
}
