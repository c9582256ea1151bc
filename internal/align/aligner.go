package align

import (
	"context"
	"fmt"
	"os"

	"github.com/banshee-data/topsalign/internal/monitoring"
	"github.com/banshee-data/topsalign/internal/offsets"
	"github.com/banshee-data/topsalign/internal/prm"
)

// Input describes one slave subswath to align.
type Input struct {
	// Reference is the super-master's first-frame record, cloned and
	// shifted into the slave's time window.
	Reference *prm.Record
	// LineMaster is the record of the line's first frame.
	LineMaster *prm.Record
	Slave      *prm.Record
	// DEM is a "lon lat height" file of ground points.
	DEM   string
	Cache *LineCache
}

// Result carries everything later stages need from one subswath.
type Result struct {
	NL     int
	TmpDA  int
	Policy OffsetPolicy
	// Samples are the paired projections inside the slave image.
	Samples offsets.Table
	// Slave is the doppler-conditioned slave record.
	Slave *prm.Record
}

// Aligner derives offset samples for slave subswaths.
type Aligner struct {
	Geo         Geometry
	EarthRadius float64
	SNR         float64
}

// NewAligner returns an aligner using the default sample SNR.
func NewAligner(geo Geometry, earthRadius float64) *Aligner {
	return &Aligner{Geo: geo, EarthRadius: earthRadius, SNR: offsets.DefaultSNR}
}

// Align estimates the slave's time shift, looks up or computes the line's
// coarse offset, positions a master clone accordingly and pairs the DEM
// projections through both geometries.
func (a *Aligner) Align(ctx context.Context, in Input) (*Result, error) {
	nl, err := EstimateTimeShift(in.LineMaster, in.Slave)
	if err != nil {
		return nil, fmt.Errorf("time shift: %w", err)
	}
	prf, err := in.LineMaster.Float(prm.KeyPRF)
	if err != nil {
		return nil, err
	}

	monitoring.Logf("shifting the master PRM by %d lines", nl)
	clone := in.Reference.Clone()
	if err := clone.ShiftClockAt(float64(nl), prf); err != nil {
		return nil, err
	}

	tmpDA, ok := in.Cache.Get()
	if !ok {
		est := &CoarseEstimator{Geo: a.Geo, EarthRadius: a.EarthRadius}
		tmpDA, err = est.Estimate(ctx, clone, in.Slave)
		if err != nil {
			return nil, fmt.Errorf("coarse offset: %w", err)
		}
		in.Cache.Set(tmpDA)
		monitoring.Debugf("coarse azimuth offset tmp_da=%d", tmpDA)
	}

	policy := PolicyFor(tmpDA)
	if policy == LargeOffset {
		monitoring.Logf("modifying master PRM by %d lines", tmpDA)
		if err := clone.ShiftClock(float64(-tmpDA)); err != nil {
			return nil, err
		}
	}

	master, err := a.Geo.Doppler(ctx, clone, a.EarthRadius)
	if err != nil {
		return nil, fmt.Errorf("condition master clone: %w", err)
	}
	slave, err := a.Geo.Doppler(ctx, in.Slave, a.EarthRadius)
	if err != nil {
		return nil, fmt.Errorf("condition slave: %w", err)
	}

	pm, err := a.projectDEM(ctx, master, in.DEM)
	if err != nil {
		return nil, err
	}
	ps, err := a.projectDEM(ctx, slave, in.DEM)
	if err != nil {
		return nil, err
	}
	table, err := offsets.Pair(pm, ps, a.SNR)
	if err != nil {
		return nil, err
	}

	rmax, err := slave.Int(prm.KeyNumRngBins)
	if err != nil {
		return nil, err
	}
	amax, err := slave.Int(prm.KeyNumLines)
	if err != nil {
		return nil, err
	}

	return &Result{
		NL:      nl,
		TmpDA:   tmpDA,
		Policy:  policy,
		Samples: table.Within(rmax, amax),
		Slave:   slave,
	}, nil
}

func (a *Aligner) projectDEM(ctx context.Context, rec *prm.Record, dem string) ([]offsets.Point, error) {
	f, err := os.Open(dem)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pts, err := a.Geo.Project(ctx, rec, f)
	if err != nil {
		return nil, fmt.Errorf("project DEM: %w", err)
	}
	return pts, nil
}
