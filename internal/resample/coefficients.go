// Package resample accumulates fine offsets for a line, fits the
// resampling polynomial and drives the final resampling of the stitched
// image onto the super-master grid.
package resample

import (
	"math"
	"strconv"

	"github.com/banshee-data/topsalign/internal/prm"
)

// Coefficients are the affine resampling terms in PRM form. The constant
// term of each axis is split into a whole shift and a sub-pixel part.
type Coefficients struct {
	RShift    float64
	SubIntR   float64
	StretchR  float64
	AStretchR float64
	AShift    float64
	SubIntA   float64
	StretchA  float64
	AStretchA float64
}

// FromAffine builds coefficients from d = c0 + c1*r + c2*a per axis.
func FromAffine(rng, azi [3]float64) Coefficients {
	rs, rf := splitShift(rng[0])
	as, af := splitShift(azi[0])
	return Coefficients{
		RShift: rs, SubIntR: rf, StretchR: rng[1], AStretchR: rng[2],
		AShift: as, SubIntA: af, StretchA: azi[1], AStretchA: azi[2],
	}
}

// splitShift truncates toward zero; the fraction keeps the sign of v.
func splitShift(v float64) (whole, frac float64) {
	whole = math.Trunc(v)
	return whole, v - whole
}

// Record renders the coefficients as PRM entries, in the order the
// resampler expects them.
func (c Coefficients) Record() *prm.Record {
	rec := prm.New()
	rec.Set(prm.KeyRShift, strconv.Itoa(int(c.RShift)))
	rec.Set(prm.KeySubIntR, formatCoef(c.SubIntR))
	rec.Set(prm.KeyStretchR, formatCoef(c.StretchR))
	rec.Set(prm.KeyAStretchR, formatCoef(c.AStretchR))
	rec.Set(prm.KeyAShift, strconv.Itoa(int(c.AShift)))
	rec.Set(prm.KeySubIntA, formatCoef(c.SubIntA))
	rec.Set(prm.KeyStretchA, formatCoef(c.StretchA))
	rec.Set(prm.KeyAStretchA, formatCoef(c.AStretchA))
	return rec
}

func formatCoef(v float64) string {
	return strconv.FormatFloat(v, 'f', 10, 64)
}

// CoefficientsFrom reads the eight resampling terms from rec.
func CoefficientsFrom(rec *prm.Record) (Coefficients, error) {
	var c Coefficients
	fields := []struct {
		key string
		dst *float64
	}{
		{prm.KeyRShift, &c.RShift},
		{prm.KeySubIntR, &c.SubIntR},
		{prm.KeyStretchR, &c.StretchR},
		{prm.KeyAStretchR, &c.AStretchR},
		{prm.KeyAShift, &c.AShift},
		{prm.KeySubIntA, &c.SubIntA},
		{prm.KeyStretchA, &c.StretchA},
		{prm.KeyAStretchA, &c.AStretchA},
	}
	for _, f := range fields {
		v, err := rec.Float(f.key)
		if err != nil {
			return Coefficients{}, err
		}
		*f.dst = v
	}
	return c, nil
}

// Transform maps a master pixel (r, a) to the slave pixel it samples.
// Zero coefficients give the identity.
func (c Coefficients) Transform(r, a float64) (float64, float64) {
	dr := c.RShift + c.SubIntR + c.StretchR*r + c.AStretchR*a
	da := c.AShift + c.SubIntA + c.StretchA*r + c.AStretchA*a
	return r + dr, a + da
}
