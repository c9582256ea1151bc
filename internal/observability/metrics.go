// Package observability records pipeline metrics and stage traces.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/topsalign/internal/align"
	"github.com/banshee-data/topsalign/internal/pipeline"
)

var durationBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800}

// Collector bundles the Prometheus metrics of a run.
type Collector struct {
	gatherer prometheus.Gatherer

	Lines         *prometheus.CounterVec
	LineDurations *prometheus.HistogramVec
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec
	OffsetSamples *prometheus.GaugeVec
	ToolCalls     *prometheus.CounterVec
	ToolDurations *prometheus.HistogramVec
}

// NewCollector registers the run metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	lines, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topsalign_lines_total",
		Help: "Processed acquisition lines, labeled by mode and outcome.",
	}, []string{"mode", "status"}), "topsalign_lines_total")
	if err != nil {
		return nil, err
	}
	lineDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topsalign_line_duration_seconds",
		Help:    "Wall time spent on one acquisition line.",
		Buckets: durationBuckets,
	}, []string{"mode"}), "topsalign_line_duration_seconds")
	if err != nil {
		return nil, err
	}
	stageDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topsalign_stage_duration_seconds",
		Help:    "Wall time spent in one pipeline stage.",
		Buckets: durationBuckets,
	}, []string{"stage"}), "topsalign_stage_duration_seconds")
	if err != nil {
		return nil, err
	}
	stageErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topsalign_stage_errors_total",
		Help: "Pipeline stages that ended with an error.",
	}, []string{"stage"}), "topsalign_stage_errors_total")
	if err != nil {
		return nil, err
	}
	samples, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "topsalign_offset_samples",
		Help: "Offset samples derived for a slave subswath.",
	}, []string{"stem", "policy"}), "topsalign_offset_samples")
	if err != nil {
		return nil, err
	}
	toolCalls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topsalign_tool_invocations_total",
		Help: "External tool invocations, labeled by tool and result.",
	}, []string{"tool", "result"}), "topsalign_tool_invocations_total")
	if err != nil {
		return nil, err
	}
	toolDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topsalign_tool_duration_seconds",
		Help:    "External tool run time.",
		Buckets: durationBuckets,
	}, []string{"tool"}), "topsalign_tool_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		Lines:         lines,
		LineDurations: lineDurations,
		StageDuration: stageDuration,
		StageErrors:   stageErrors,
		OffsetSamples: samples,
		ToolCalls:     toolCalls,
		ToolDurations: toolDurations,
	}, nil
}

// ObserveLine counts a finished line.
func (c *Collector) ObserveLine(mode pipeline.Mode, status pipeline.LineStatus, d time.Duration) {
	if c == nil {
		return
	}
	c.Lines.WithLabelValues(mode.String(), string(status)).Inc()
	c.LineDurations.WithLabelValues(mode.String()).Observe(d.Seconds())
}

// ObserveStage records the duration and outcome of a stage.
func (c *Collector) ObserveStage(stage string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		c.StageErrors.WithLabelValues(stage).Inc()
	}
}

// SetOffsetSamples records the sample count of a slave subswath.
func (c *Collector) SetOffsetSamples(stem string, policy align.OffsetPolicy, n int) {
	if c == nil {
		return
	}
	c.OffsetSamples.WithLabelValues(stem, policy.String()).Set(float64(n))
}

// ObserveTool records one external tool invocation. Its signature matches
// exttool.Observer.
func (c *Collector) ObserveTool(tool string, d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ToolCalls.WithLabelValues(tool, result).Inc()
	c.ToolDurations.WithLabelValues(tool).Observe(d.Seconds())
}

// WriteFile writes the current metrics to path in the Prometheus text
// format, for pickup by a node exporter textfile collector.
func (c *Collector) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
