package grid

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Point is a scattered (x, y, z) sample.
type Point struct {
	X, Y, Z float64
}

// BlockMedian bins points into spec's cells over ext and returns one node
// per occupied cell holding the median z. Points outside ext are dropped.
// Nodes are ordered by row, then column.
func BlockMedian(points []Point, spec Spec, ext Extent) []Node {
	cols, rows := spec.Dims(ext)
	bins := make(map[int][]float64)
	for _, p := range points {
		if p.X < 0 || p.Y < 0 || p.X >= float64(ext.RangeBins) || p.Y >= float64(ext.LineBins) {
			continue
		}
		if math.IsNaN(p.Z) {
			continue
		}
		col := clamp(int(p.X/spec.CellRange), 0, cols-1)
		row := clamp(int(p.Y/spec.CellAzimuth), 0, rows-1)
		k := row*cols + col
		bins[k] = append(bins[k], p.Z)
	}

	keys := make([]int, 0, len(bins))
	for k := range bins {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	nodes := make([]Node, 0, len(keys))
	for _, k := range keys {
		nodes = append(nodes, Node{Col: k % cols, Row: k / cols, Value: median(bins[k])})
	}
	return nodes
}

// median sorts xs in place; even counts average the two middle values.
func median(xs []float64) float64 {
	sort.Float64s(xs)
	lo := stat.Quantile(0.5, stat.Empirical, xs, nil)
	if len(xs)%2 == 1 {
		return lo
	}
	return 0.5 * (lo + xs[len(xs)/2])
}
