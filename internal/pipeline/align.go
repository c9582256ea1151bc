package pipeline

import (
	"context"
	"fmt"

	"github.com/banshee-data/topsalign/internal/align"
	"github.com/banshee-data/topsalign/internal/catalog"
	"github.com/banshee-data/topsalign/internal/grid"
	"github.com/banshee-data/topsalign/internal/monitoring"
	"github.com/banshee-data/topsalign/internal/prm"
	"github.com/banshee-data/topsalign/internal/resample"
	"github.com/banshee-data/topsalign/internal/stitch"
)

// alignLine forms every frame of the line, stitches them and, for lines
// other than the super-master's, resamples the product onto the
// super-master.
func (p *Pipeline) alignLine(ctx context.Context, state *RunState, lc *LineContext) error {
	super := state.Catalog.IsSuperMasterLine(lc.Line)
	for i, img := range lc.Line.Images {
		var err error
		if super {
			err = p.formReference(ctx, lc, img)
		} else {
			err = p.alignImage(ctx, state, lc, i, img)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", img.Stem(), err)
		}
		lc.Parts = append(lc.Parts, stitch.Part{Stem: img.Stem()})
	}

	if super {
		ref, err := p.store.Load(lc.Line.Master().Stem())
		if err != nil {
			return err
		}
		state.SetReference(ref)
	}

	var product *stitch.Product
	err := p.stage(ctx, "stitch", lc.Line.Stem(), func(ctx context.Context) error {
		var err error
		product, err = stitch.NewStitcher(p.store, lc.Kit).Stitch(ctx, lc.Line.Stem(), lc.Parts, lc.Line.Stem())
		if err != nil {
			return err
		}
		return lc.Kit.ApplyOrbit(ctx, product.Stem, lc.Line.Orbit.Path)
	})
	if err != nil {
		return err
	}

	if !super {
		err := p.stage(ctx, "resample", product.Stem, func(ctx context.Context) error {
			r := &resample.Resampler{Store: p.store, Engine: lc.Kit, Fitter: p.fitter(lc.Kit)}
			return r.Finalize(ctx, state.Catalog.SuperMasterStem(), product, &lc.Aggregator)
		})
		if err != nil {
			return err
		}
	}

	return p.stage(ctx, "doppler", product.Stem, func(ctx context.Context) error {
		return p.conditionDoppler(ctx, state, lc, product.Stem)
	})
}

// formReference forms a super-master line frame in its own geometry.
func (p *Pipeline) formReference(ctx context.Context, lc *LineContext, img catalog.SubswathImage) error {
	return p.stage(ctx, "form", img.Stem(), func(ctx context.Context) error {
		if err := lc.Kit.FormImage(ctx, img.Annotation(), img.Pixels(), img.Stem(), 1); err != nil {
			return err
		}
		return lc.Kit.ApplyOrbit(ctx, img.Stem(), lc.Line.Orbit.Path)
	})
}

// alignImage forms one frame of a non-super-master line resampled onto the
// super-master geometry and records its offsets for the line fit.
func (p *Pipeline) alignImage(ctx context.Context, state *RunState, lc *LineContext, i int, img catalog.SubswathImage) error {
	stem := img.Stem()
	err := p.stage(ctx, "form", stem, func(ctx context.Context) error {
		if err := lc.Kit.FormImage(ctx, img.Annotation(), img.Pixels(), stem, 0); err != nil {
			return err
		}
		return lc.Kit.ApplyOrbit(ctx, stem, lc.Line.Orbit.Path)
	})
	if err != nil {
		return err
	}

	rec, err := p.store.Load(stem)
	if err != nil {
		return err
	}
	if i == 0 {
		lc.LineMaster = rec
	}
	ref := state.Reference()
	if ref == nil {
		return fmt.Errorf("super-master record not available")
	}
	radius, ok := state.EarthRadius()
	if !ok {
		return fmt.Errorf("earth radius not derived from the super-master line")
	}

	var res *align.Result
	err = p.stage(ctx, "align", stem, func(ctx context.Context) error {
		aligner := align.NewAligner(lc.Kit, radius)
		aligner.SNR = p.Opts.SampleSNR
		var err error
		res, err = aligner.Align(ctx, align.Input{
			Reference:  ref,
			LineMaster: lc.LineMaster,
			Slave:      rec,
			DEM:        state.Topo,
			Cache:      &lc.Cache,
		})
		return err
	})
	if err != nil {
		return err
	}
	if err := p.store.Save(stem, res.Slave); err != nil {
		return err
	}
	monitoring.Logf("%s: nl=%d tmp_da=%d policy=%s samples=%d", stem, res.NL, res.TmpDA, res.Policy, len(res.Samples))
	lc.Aggregator.Add(res.Policy, res.NL, res.TmpDA, res.Samples)
	p.Observer.OffsetSamples(stem, res.Policy, len(res.Samples))
	if err := p.Ledger.RecordAlignment(context.WithoutCancel(ctx), lc.Line.Stem(), stem, res); err != nil {
		p.logLedger("alignment", stem, err)
	}

	rGrd, aGrd := lc.Scratch.Path("r.grd"), lc.Scratch.Path("a.grd")
	err = p.stage(ctx, "grid", stem, func(ctx context.Context) error {
		ext, err := extentOf(res.Slave)
		if err != nil {
			return err
		}
		corr, err := grid.NewBuilder(p.Opts.Grid).Build(stem, res.Samples, ext)
		if err != nil {
			return err
		}
		monitoring.Debugf("%s: grid from %d samples in %d cells", stem, corr.Samples, corr.Nodes)
		if err := lc.Kit.WriteGrid(ctx, corr.Range, rGrd); err != nil {
			return err
		}
		return lc.Kit.WriteGrid(ctx, corr.Azimuth, aGrd)
	})
	if err != nil {
		return err
	}

	return p.stage(ctx, "reform", stem, func(ctx context.Context) error {
		if err := lc.Kit.FormImage(ctx, img.Annotation(), img.Pixels(), stem, 1, rGrd, aGrd); err != nil {
			return err
		}
		coeffs, err := p.fitter(lc.Kit).Fit(ctx, res.Samples)
		if err != nil {
			return fmt.Errorf("fit subswath offsets: %w", err)
		}
		formed, err := p.store.Load(stem)
		if err != nil {
			return err
		}
		formed.Merge(coeffs)
		return p.store.Save(stem, formed)
	})
}

func extentOf(rec *prm.Record) (grid.Extent, error) {
	r, err := rec.Int(prm.KeyNumRngBins)
	if err != nil {
		return grid.Extent{}, err
	}
	a, err := rec.Int(prm.KeyNumLines)
	if err != nil {
		return grid.Extent{}, err
	}
	return grid.Extent{RangeBins: r, LineBins: a}, nil
}
