package grid

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Interpolator fills a dense surface from binned nodes. Implementations
// return surfaces in NorthUp order, the storage order of GMT grids.
type Interpolator interface {
	Interpolate(nodes []Node, cols, rows int, spec Spec) (*Surface, error)
	// MinSupport is the fewest nodes the method accepts.
	MinSupport() int
}

// coarsestSide is the grid size below which the solver stops coarsening.
const coarsestSide = 16

// TensionSpline interpolates with a continuous-curvature spline under
// tension: it minimises (1-T)·Σ(∇²z)² + T·Σ|∇z|² with the data nodes held
// fixed. The system is solved by conjugate gradients, seeded from a
// solution on a grid coarsened by two in each direction.
type TensionSpline struct{}

// MinSupport requires three nodes, the fewest that fix a plane.
func (TensionSpline) MinSupport() int { return 3 }

// Interpolate implements Interpolator.
func (ts TensionSpline) Interpolate(nodes []Node, cols, rows int, spec Spec) (*Surface, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if cols <= 0 || rows <= 0 {
		return nil, errors.New("empty grid")
	}
	if len(nodes) == 0 {
		return nil, errors.New("no nodes to interpolate")
	}

	z := solveLevel(nodes, cols, rows, spec)

	out := NewSurface(cols, rows, spec, NorthUp)
	for r := 0; r < rows; r++ {
		out.Data.SetRow(rows-1-r, z[r*cols:(r+1)*cols])
	}
	return out, nil
}

// solveLevel returns the bottom-up row-major solution for one grid level.
func solveLevel(nodes []Node, cols, rows int, spec Spec) []float64 {
	n := cols * rows
	z := make([]float64, n)
	fixed := make([]bool, n)

	if cols >= 2*coarsestSide && rows >= 2*coarsestSide {
		cc, cr := (cols+1)/2, (rows+1)/2
		coarse := coarsen(nodes, cc)
		zc := solveLevel(coarse, cc, cr, spec)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				z[r*cols+c] = zc[(r/2)*cc+c/2]
			}
		}
	} else {
		mean := 0.0
		for _, nd := range nodes {
			mean += nd.Value
		}
		mean /= float64(len(nodes))
		for i := range z {
			z[i] = mean
		}
	}

	for _, nd := range nodes {
		i := nd.Row*cols + nd.Col
		z[i] = nd.Value
		fixed[i] = true
	}

	op := &tensionOperator{cols: cols, rows: rows, tension: spec.Tension}
	conjugateGradient(op, z, fixed, spec.MaxIterations, spec.Tolerance)
	return z
}

// coarsen averages nodes that fall into the same 2x2 block.
func coarsen(nodes []Node, coarseCols int) []Node {
	sum := make(map[int]float64)
	cnt := make(map[int]int)
	var order []int
	for _, nd := range nodes {
		k := (nd.Row/2)*coarseCols + nd.Col/2
		if cnt[k] == 0 {
			order = append(order, k)
		}
		sum[k] += nd.Value
		cnt[k]++
	}
	out := make([]Node, 0, len(order))
	for _, k := range order {
		out = append(out, Node{Col: k % coarseCols, Row: k / coarseCols, Value: sum[k] / float64(cnt[k])})
	}
	return out
}

// tensionOperator applies H = (1-T)·LᵀL + T·GᵀG, where L is the 5-point
// Laplacian at interior nodes and G the forward differences.
type tensionOperator struct {
	cols, rows int
	tension    float64
	lap        []float64
}

func (op *tensionOperator) apply(dst, v []float64) {
	cols, rows := op.cols, op.rows
	for i := range dst {
		dst[i] = 0
	}

	curv := 1 - op.tension
	if curv > 0 && cols >= 3 && rows >= 3 {
		if len(op.lap) != len(v) {
			op.lap = make([]float64, len(v))
		}
		for r := 1; r < rows-1; r++ {
			for c := 1; c < cols-1; c++ {
				i := r*cols + c
				op.lap[i] = v[i-1] + v[i+1] + v[i-cols] + v[i+cols] - 4*v[i]
			}
		}
		for r := 1; r < rows-1; r++ {
			for c := 1; c < cols-1; c++ {
				i := r*cols + c
				q := curv * op.lap[i]
				dst[i] -= 4 * q
				dst[i-1] += q
				dst[i+1] += q
				dst[i-cols] += q
				dst[i+cols] += q
			}
		}
	}

	t := op.tension
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			if c+1 < cols {
				g := t * (v[i+1] - v[i])
				dst[i+1] += g
				dst[i] -= g
			}
			if r+1 < rows {
				g := t * (v[i+cols] - v[i])
				dst[i+cols] += g
				dst[i] -= g
			}
		}
	}
}

// conjugateGradient minimises the quadratic form of op over the free
// entries of x, leaving fixed entries untouched.
func conjugateGradient(op *tensionOperator, x []float64, fixed []bool, maxIter int, tol float64) int {
	n := len(x)
	r := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)

	op.apply(r, x)
	floats.Scale(-1, r)
	maskFixed(r, fixed)
	copy(p, r)

	rs := floats.Dot(r, r)
	stop := tol * tol * rs
	if rs == 0 {
		return 0
	}
	for k := 0; k < maxIter; k++ {
		op.apply(ap, p)
		maskFixed(ap, fixed)
		pap := floats.Dot(p, ap)
		if pap <= 0 || math.IsNaN(pap) {
			return k
		}
		alpha := rs / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		rsNew := floats.Dot(r, r)
		if rsNew <= stop {
			return k + 1
		}
		beta := rsNew / rs
		for i := range p {
			p[i] = r[i] + beta*p[i]
		}
		rs = rsNew
	}
	return maxIter
}

func maskFixed(v []float64, fixed []bool) {
	for i, f := range fixed {
		if f {
			v[i] = 0
		}
	}
}
