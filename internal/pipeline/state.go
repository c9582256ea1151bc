package pipeline

import (
	"sync"

	"github.com/banshee-data/topsalign/internal/align"
	"github.com/banshee-data/topsalign/internal/catalog"
	"github.com/banshee-data/topsalign/internal/fsutil"
	"github.com/banshee-data/topsalign/internal/gmtsar"
	"github.com/banshee-data/topsalign/internal/prm"
	"github.com/banshee-data/topsalign/internal/resample"
	"github.com/banshee-data/topsalign/internal/stitch"
)

// RunState is shared by every line of a run. The super-master line fills
// it in; later lines only read it.
type RunState struct {
	Catalog *catalog.Catalog
	// Topo is the sampled "lon lat height" DEM file.
	Topo string

	mu          sync.RWMutex
	earthRadius float64
	hasRadius   bool
	reference   *prm.Record
}

// SetEarthRadius records the radius derived from the super-master line.
// Later calls are ignored.
func (s *RunState) SetEarthRadius(r float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasRadius {
		s.earthRadius, s.hasRadius = r, true
	}
}

// EarthRadius returns the derived radius and whether it is known.
func (s *RunState) EarthRadius() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.earthRadius, s.hasRadius
}

// SetReference stores the super-master first-frame record.
func (s *RunState) SetReference(rec *prm.Record) {
	s.mu.Lock()
	s.reference = rec
	s.mu.Unlock()
}

// Reference returns a clone of the super-master first-frame record, or nil.
func (s *RunState) Reference() *prm.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reference == nil {
		return nil
	}
	return s.reference.Clone()
}

// LineContext is the private working state of one line.
type LineContext struct {
	Line    catalog.AcquisitionLine
	Scratch *fsutil.Scratch
	Kit     *gmtsar.Toolkit

	Cache      align.LineCache
	Aggregator resample.Aggregator
	Parts      []stitch.Part
	// LineMaster is the record of the line's first frame.
	LineMaster *prm.Record
}

func (lc *LineContext) close() error {
	return lc.Scratch.Remove()
}
