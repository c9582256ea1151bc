package resample

import (
	"sync"

	"github.com/banshee-data/topsalign/internal/align"
	"github.com/banshee-data/topsalign/internal/offsets"
)

// Aggregator collects the offset samples of every subswath of a line,
// moved into the stitched line's azimuth frame.
type Aggregator struct {
	mu     sync.Mutex
	table  offsets.Table
	policy align.OffsetPolicy
	tmpDA  int
}

// Add appends samples of one subswath. Small offsets move azimuth by nl;
// large ones also take tmpDA out of azimuth and put it into da.
func (g *Aggregator) Add(policy align.OffsetPolicy, nl, tmpDA int, samples offsets.Table) {
	shiftA := float64(nl)
	shiftDA := 0.0
	if policy == align.LargeOffset {
		shiftA -= float64(tmpDA)
		shiftDA = float64(tmpDA)
	}
	moved := samples.Map(func(s offsets.Sample) offsets.Sample {
		s.Azimuth += shiftA
		s.DAzimuth += shiftDA
		return s
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	g.table = append(g.table, moved...)
	g.policy = policy
	g.tmpDA = tmpDA
}

// Table returns a copy of the accumulated samples.
func (g *Aggregator) Table() offsets.Table {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append(offsets.Table(nil), g.table...)
}

// Len is the number of accumulated samples.
func (g *Aggregator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.table)
}

// AzimuthShift is the whole-line shift to restore when resampling.
func (g *Aggregator) AzimuthShift() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policy.AzimuthShift(g.tmpDA)
}
