package resample

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/topsalign/internal/offsets"
	"github.com/banshee-data/topsalign/internal/prm"
)

// Fitter turns an offset table into PRM resampling coefficients.
type Fitter interface {
	Fit(ctx context.Context, table offsets.Table) (*prm.Record, error)
}

// ErrTooFewSamples is returned when the table cannot constrain the fit.
var ErrTooFewSamples = errors.New("too few offset samples for fit")

// PolyFitter fits dr and da as polynomials in (r, a) by least squares.
// One parameter fits a constant; three fit c0 + c1*r + c2*a.
type PolyFitter struct {
	RangeParams   int
	AzimuthParams int
	// SNRThreshold drops samples whose SNR is not above it.
	SNRThreshold float64
}

// NewPolyFitter returns the 3/3 fitter with the given SNR threshold.
func NewPolyFitter(snr float64) *PolyFitter {
	return &PolyFitter{RangeParams: 3, AzimuthParams: 3, SNRThreshold: snr}
}

// Fit implements Fitter.
func (f *PolyFitter) Fit(ctx context.Context, table offsets.Table) (*prm.Record, error) {
	c, err := f.Coefficients(table)
	if err != nil {
		return nil, err
	}
	return c.Record(), nil
}

// Coefficients fits table and returns the terms.
func (f *PolyFitter) Coefficients(table offsets.Table) (Coefficients, error) {
	var r, a, dr, da []float64
	for _, s := range table {
		if s.SNR > f.SNRThreshold {
			r = append(r, s.Range)
			a = append(a, s.Azimuth)
			dr = append(dr, s.DRange)
			da = append(da, s.DAzimuth)
		}
	}

	rc, err := fitAxis(r, a, dr, f.RangeParams)
	if err != nil {
		return Coefficients{}, fmt.Errorf("range fit: %w", err)
	}
	ac, err := fitAxis(r, a, da, f.AzimuthParams)
	if err != nil {
		return Coefficients{}, fmt.Errorf("azimuth fit: %w", err)
	}
	return FromAffine(rc, ac), nil
}

// fitAxis solves d = c0 [+ c1*r + c2*a] in the least-squares sense.
func fitAxis(r, a, d []float64, params int) ([3]float64, error) {
	var out [3]float64
	switch params {
	case 1:
		if len(d) == 0 {
			return out, ErrTooFewSamples
		}
		out[0] = stat.Mean(d, nil)
		return out, nil
	case 3:
	default:
		return out, fmt.Errorf("unsupported parameter count %d", params)
	}

	n := len(d)
	if n < params {
		return out, fmt.Errorf("%w: have %d, need %d", ErrTooFewSamples, n, params)
	}

	// Centre the coordinates to keep the normal system well conditioned.
	rm, am := stat.Mean(r, nil), stat.Mean(a, nil)
	design := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		design.Set(i, 1, r[i]-rm)
		design.Set(i, 2, a[i]-am)
	}
	rhs := mat.NewVecDense(n, append([]float64(nil), d...))

	var x mat.VecDense
	if err := x.SolveVec(design, rhs); err != nil {
		return out, fmt.Errorf("solve: %w", err)
	}
	c1, c2 := x.AtVec(1), x.AtVec(2)
	out[0] = x.AtVec(0) - c1*rm - c2*am
	out[1] = c1
	out[2] = c2
	return out, nil
}
