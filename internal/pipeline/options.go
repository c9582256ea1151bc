package pipeline

import (
	"fmt"
	"strconv"

	"github.com/banshee-data/topsalign/internal/grid"
	"github.com/banshee-data/topsalign/internal/offsets"
)

// Mode selects the processing flow.
type Mode int

const (
	// ModeBaseline forms line PRMs and builds the baseline-time table.
	ModeBaseline Mode = 1
	// ModeAlign aligns, stitches and resamples every line onto the
	// super-master.
	ModeAlign Mode = 2
)

// ParseMode accepts "1" or "2".
func ParseMode(s string) (Mode, error) {
	n, err := strconv.Atoi(s)
	if err != nil || (Mode(n) != ModeBaseline && Mode(n) != ModeAlign) {
		return 0, fmt.Errorf("mode must be 1 (baseline) or 2 (align), got %q", s)
	}
	return Mode(n), nil
}

func (m Mode) String() string {
	switch m {
	case ModeBaseline:
		return "baseline"
	case ModeAlign:
		return "align"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Fitter names.
const (
	FitterNative    = "native"
	FitterFitOffset = "fitoffset"
)

// Options configure a run.
type Options struct {
	// Workdir is where products are written and collaborators run.
	Workdir string
	Catalog string
	DEM     string
	Mode    Mode

	OnError ErrorPolicy
	// Workers above 1 processes lines after the super-master concurrently.
	Workers int

	Grid      grid.Spec
	SampleSNR float64

	Fitter           string
	FitRangeParams   int
	FitAzimuthParams int
	FitSNRThreshold  float64

	DEMFilterWidth string
	DEMIncrement   string
}

// DefaultOptions returns the standard TOPS settings for workdir.
func DefaultOptions(workdir string) Options {
	return Options{
		Workdir:          workdir,
		Mode:             ModeAlign,
		OnError:          FailFast,
		Workers:          1,
		Grid:             grid.DefaultSpec(),
		SampleSNR:        offsets.DefaultSNR,
		Fitter:           FitterNative,
		FitRangeParams:   3,
		FitAzimuthParams: 3,
		FitSNRThreshold:  20,
		DEMFilterWidth:   "2",
		DEMIncrement:     "12s",
	}
}

// Validate checks option values.
func (o Options) Validate() error {
	if o.Workdir == "" {
		return fmt.Errorf("workdir is required")
	}
	if o.Mode != ModeBaseline && o.Mode != ModeAlign {
		return fmt.Errorf("invalid mode %d", int(o.Mode))
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	if o.Fitter != FitterNative && o.Fitter != FitterFitOffset {
		return fmt.Errorf("unknown fitter %q", o.Fitter)
	}
	if o.Mode == ModeAlign {
		if err := o.Grid.Validate(); err != nil {
			return err
		}
	}
	return nil
}
