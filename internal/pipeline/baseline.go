package pipeline

import (
	"context"

	"github.com/banshee-data/topsalign/internal/baseline"
)

// baselineLine forms the line master's record under the line stem,
// conditions it and measures its baseline against the super-master line.
func (p *Pipeline) baselineLine(ctx context.Context, state *RunState, lc *LineContext) (*baseline.Row, error) {
	img := lc.Line.Master()
	stem := lc.Line.Stem()

	err := p.stage(ctx, "form", stem, func(ctx context.Context) error {
		if err := lc.Kit.FormImage(ctx, img.Annotation(), img.Pixels(), stem, 0); err != nil {
			return err
		}
		return lc.Kit.ApplyOrbit(ctx, stem, lc.Line.Orbit.Path)
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, "doppler", stem, func(ctx context.Context) error {
		return p.conditionDoppler(ctx, state, lc, stem)
	})
	if err != nil {
		return nil, err
	}

	var row baseline.Row
	err = p.stage(ctx, "baseline", stem, func(ctx context.Context) error {
		var err error
		row, err = lc.Kit.BaselineRow(ctx, state.Catalog.SuperMasterStem(), stem)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := p.Ledger.RecordBaseline(context.WithoutCancel(ctx), row); err != nil {
		p.logLedger("baseline", stem, err)
	}
	return &row, nil
}
