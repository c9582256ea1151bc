package align

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/topsalign/internal/offsets"
	"github.com/banshee-data/topsalign/internal/prm"
)

// Geometry is the orbit geometry a coarse and fine offset estimate needs.
type Geometry interface {
	// Doppler returns rec augmented with doppler and height terms for the
	// given earth radius.
	Doppler(ctx context.Context, rec *prm.Record, earthRadius float64) (*prm.Record, error)
	// TiePoint returns the ground point shared by two geometries.
	TiePoint(ctx context.Context, master, slave *prm.Record) (lon, lat float64, err error)
	// Project maps "lon lat height" lines to image coordinates of rec.
	Project(ctx context.Context, rec *prm.Record, llt io.Reader) ([]offsets.Point, error)
}

// ErrNoProjection is returned when a projection yields no point.
var ErrNoProjection = errors.New("tie point did not project")

// CoarseEstimator finds the whole-line azimuth offset between a shifted
// master clone and a slave by projecting their common tie point.
type CoarseEstimator struct {
	Geo         Geometry
	EarthRadius float64
}

// Estimate returns tmp_da = trunc(az_slave - az_master). Doppler
// conditioning is applied to copies used for the tie point only; the
// projections use the records as given.
func (e *CoarseEstimator) Estimate(ctx context.Context, master, slave *prm.Record) (int, error) {
	md, err := e.Geo.Doppler(ctx, master, e.EarthRadius)
	if err != nil {
		return 0, fmt.Errorf("condition master clone: %w", err)
	}
	sd, err := e.Geo.Doppler(ctx, slave, e.EarthRadius)
	if err != nil {
		return 0, fmt.Errorf("condition slave: %w", err)
	}

	lon, lat, err := e.Geo.TiePoint(ctx, md, sd)
	if err != nil {
		return 0, fmt.Errorf("tie point: %w", err)
	}

	am, err := e.projectPoint(ctx, master, lon, lat)
	if err != nil {
		return 0, err
	}
	as, err := e.projectPoint(ctx, slave, lon, lat)
	if err != nil {
		return 0, err
	}
	return int(as.Azimuth - am.Azimuth), nil
}

func (e *CoarseEstimator) projectPoint(ctx context.Context, rec *prm.Record, lon, lat float64) (offsets.Point, error) {
	line := strconv.FormatFloat(lon, 'f', -1, 64) + " " + strconv.FormatFloat(lat, 'f', -1, 64) + " 0\n"
	pts, err := e.Geo.Project(ctx, rec, strings.NewReader(line))
	if err != nil {
		return offsets.Point{}, fmt.Errorf("project tie point: %w", err)
	}
	if len(pts) == 0 {
		return offsets.Point{}, ErrNoProjection
	}
	return pts[0], nil
}
