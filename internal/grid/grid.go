// Package grid turns sparse offset samples into dense range/azimuth
// correction surfaces covering a full image.
package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Extent is the image size in range bins and azimuth lines.
type Extent struct {
	RangeBins int
	LineBins  int
}

// Spec controls binning and surface fitting.
type Spec struct {
	CellRange     float64 // cell width in range bins
	CellAzimuth   float64 // cell height in azimuth lines
	Tension       float64 // 0 < T <= 1; 1 is harmonic (membrane), small T approaches minimum curvature
	MaxIterations int
	Tolerance     float64 // relative residual at which the solver stops
}

// DefaultSpec matches the blockmedian/surface settings used for TOPS
// alignment: -I8/4 -T0.5 -N1000.
func DefaultSpec() Spec {
	return Spec{
		CellRange:     8,
		CellAzimuth:   4,
		Tension:       0.5,
		MaxIterations: 1000,
		Tolerance:     1e-4,
	}
}

// Validate checks spec values.
func (s Spec) Validate() error {
	if s.CellRange <= 0 || s.CellAzimuth <= 0 {
		return fmt.Errorf("cell size must be positive, got %vx%v", s.CellRange, s.CellAzimuth)
	}
	if s.Tension <= 0 || s.Tension > 1 {
		return fmt.Errorf("tension must be in (0, 1], got %v", s.Tension)
	}
	if s.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", s.MaxIterations)
	}
	return nil
}

// Dims returns the node counts covering ext with pixel registration.
func (s Spec) Dims(ext Extent) (cols, rows int) {
	cols = int(math.Ceil(float64(ext.RangeBins) / s.CellRange))
	rows = int(math.Ceil(float64(ext.LineBins) / s.CellAzimuth))
	return cols, rows
}

// Node is a binned value at cell (Col, Row). Row counts up from azimuth 0.
type Node struct {
	Col   int
	Row   int
	Value float64
}

// Orientation is the row order of a Surface.
type Orientation int

const (
	// NorthUp stores the highest azimuth first, as GMT grids do.
	NorthUp Orientation = iota
	// RasterOrder stores azimuth line 0 first, as the image does.
	RasterOrder
)

// Surface is a dense grid of values with pixel registration.
type Surface struct {
	Cols, Rows  int
	CellRange   float64
	CellAzimuth float64
	Orientation Orientation
	Data        *mat.Dense // Rows x Cols
}

// NewSurface allocates a zero surface.
func NewSurface(cols, rows int, spec Spec, o Orientation) *Surface {
	return &Surface{
		Cols:        cols,
		Rows:        rows,
		CellRange:   spec.CellRange,
		CellAzimuth: spec.CellAzimuth,
		Orientation: o,
		Data:        mat.NewDense(rows, cols, nil),
	}
}

// storageRow maps a bottom-up cell row to the surface's storage row.
func (s *Surface) storageRow(row int) int {
	if s.Orientation == NorthUp {
		return s.Rows - 1 - row
	}
	return row
}

// Cell returns the value of cell (col, row), with row counted up from azimuth 0.
func (s *Surface) Cell(col, row int) float64 {
	return s.Data.At(s.storageRow(row), col)
}

// Value returns the value of the cell containing pixel (x, y). Points
// outside the grid are clamped to the nearest edge cell.
func (s *Surface) Value(x, y float64) float64 {
	col := clamp(int(math.Floor(x/s.CellRange)), 0, s.Cols-1)
	row := clamp(int(math.Floor(y/s.CellAzimuth)), 0, s.Rows-1)
	return s.Cell(col, row)
}

// FlipUD returns a copy with the row order reversed and the orientation toggled.
func (s *Surface) FlipUD() *Surface {
	out := &Surface{
		Cols:        s.Cols,
		Rows:        s.Rows,
		CellRange:   s.CellRange,
		CellAzimuth: s.CellAzimuth,
		Orientation: RasterOrder,
		Data:        mat.NewDense(s.Rows, s.Cols, nil),
	}
	if s.Orientation == RasterOrder {
		out.Orientation = NorthUp
	}
	for r := 0; r < s.Rows; r++ {
		out.Data.SetRow(s.Rows-1-r, s.Data.RawRowView(r))
	}
	return out
}

// Defined reports whether every node holds a finite value.
func (s *Surface) Defined() bool {
	for _, v := range s.Data.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
