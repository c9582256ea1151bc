package resample

import (
	"context"
	"fmt"

	"github.com/banshee-data/topsalign/internal/fsutil"
	"github.com/banshee-data/topsalign/internal/monitoring"
	"github.com/banshee-data/topsalign/internal/prm"
	"github.com/banshee-data/topsalign/internal/stitch"
)

// Engine resamples a slave image onto the master grid, writing the new
// record and image to outPRM and outSLC.
type Engine interface {
	Resample(ctx context.Context, masterPRM, slavePRM, outPRM, outSLC string) error
}

// Resampler finishes a stitched non-super-master line.
type Resampler struct {
	Store  *prm.Store
	Engine Engine
	Fitter Fitter
}

// Finalize backs the stitched record up as .PRM0, sets the whole-line
// shifts, resamples onto masterStem, swaps the resampled outputs in and
// appends the coefficients fitted to the line's aggregated samples.
func (r *Resampler) Finalize(ctx context.Context, masterStem string, p *stitch.Product, agg *Aggregator) error {
	if err := fsutil.CopyFile(p.PRM, p.PRM+"0"); err != nil {
		return fmt.Errorf("back up %s: %w", p.PRM, err)
	}

	rec, err := r.Store.Load(p.Stem)
	if err != nil {
		return err
	}
	ashift := agg.AzimuthShift()
	if ashift != 0 {
		monitoring.Logf("restoring %d lines shift to the image", ashift)
	}
	rec.SetInt(prm.KeyAShift, ashift)
	rec.SetInt(prm.KeyRShift, 0)
	if err := r.Store.Save(p.Stem, rec); err != nil {
		return err
	}

	outPRM, outSLC := p.PRM+"resamp", p.SLC+"resamp"
	if err := r.Engine.Resample(ctx, r.Store.Path(masterStem), p.PRM, outPRM, outSLC); err != nil {
		return fmt.Errorf("resample %s: %w", p.Stem, err)
	}
	if err := fsutil.Move(outPRM, p.PRM); err != nil {
		return err
	}
	if err := fsutil.Move(outSLC, p.SLC); err != nil {
		return err
	}

	coeffs, err := r.Fitter.Fit(ctx, agg.Table())
	if err != nil {
		return fmt.Errorf("fit %s: %w", p.Stem, err)
	}
	rec, err = r.Store.Load(p.Stem)
	if err != nil {
		return err
	}
	rec.Merge(coeffs)
	return r.Store.Save(p.Stem, rec)
}
