package grid

import (
	"errors"
	"fmt"

	"github.com/banshee-data/topsalign/internal/offsets"
)

// InsufficientSamplesError is returned when too few binned samples remain
// to support the surface fit.
type InsufficientSamplesError struct {
	Name string // subswath or line the samples belong to
	Have int
	Need int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("insufficient offset samples for %s: have %d binned nodes, need %d", e.Name, e.Have, e.Need)
}

// Correction holds the dense range and azimuth shift surfaces, in
// RasterOrder, plus the counts they were built from.
type Correction struct {
	Range   *Surface
	Azimuth *Surface
	Samples int // samples inside the extent
	Nodes   int // occupied cells
}

// Builder converts offset tables into correction surfaces.
type Builder struct {
	Spec   Spec
	Interp Interpolator
}

// NewBuilder returns a builder using the native tension spline.
func NewBuilder(spec Spec) *Builder {
	return &Builder{Spec: spec, Interp: TensionSpline{}}
}

// Build filters samples to ext, median-bins them, interpolates both
// components over the full extent and flips the result into raster order.
func (b *Builder) Build(name string, samples offsets.Table, ext Extent) (*Correction, error) {
	if ext.RangeBins <= 0 || ext.LineBins <= 0 {
		return nil, errors.New("grid extent must be positive")
	}
	if err := b.Spec.Validate(); err != nil {
		return nil, err
	}

	inside := samples.Within(ext.RangeBins, ext.LineBins)
	rPts := make([]Point, len(inside))
	aPts := make([]Point, len(inside))
	for i, s := range inside {
		rPts[i] = Point{X: s.Range, Y: s.Azimuth, Z: s.DRange}
		aPts[i] = Point{X: s.Range, Y: s.Azimuth, Z: s.DAzimuth}
	}
	rNodes := BlockMedian(rPts, b.Spec, ext)
	aNodes := BlockMedian(aPts, b.Spec, ext)

	if need := b.Interp.MinSupport(); len(rNodes) < need {
		return nil, &InsufficientSamplesError{Name: name, Have: len(rNodes), Need: need}
	}

	cols, rows := b.Spec.Dims(ext)
	rs, err := b.Interp.Interpolate(rNodes, cols, rows, b.Spec)
	if err != nil {
		return nil, fmt.Errorf("interpolate range shift for %s: %w", name, err)
	}
	as, err := b.Interp.Interpolate(aNodes, cols, rows, b.Spec)
	if err != nil {
		return nil, fmt.Errorf("interpolate azimuth shift for %s: %w", name, err)
	}

	return &Correction{
		Range:   rs.FlipUD(),
		Azimuth: as.FlipUD(),
		Samples: len(inside),
		Nodes:   len(rNodes),
	}, nil
}
