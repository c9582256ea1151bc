package gmtsar

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/banshee-data/topsalign/internal/baseline"
	"github.com/banshee-data/topsalign/internal/grid"
	"github.com/banshee-data/topsalign/internal/offsets"
	"github.com/banshee-data/topsalign/internal/prm"
)

// BaselineRow runs baseline_table.csh for stem against masterStem.
func (t *Toolkit) BaselineRow(ctx context.Context, masterStem, stem string) (baseline.Row, error) {
	res, err := t.run(ctx, ToolBaselineTable, nil, true, masterStem+".PRM", stem+".PRM")
	if err != nil {
		return baseline.Row{}, err
	}
	lines := res.Lines()
	return baseline.ParseRow(lines[len(lines)-1])
}

// SampleDEM low-pass filters and resamples dem, then writes its nodes as
// "lon lat height" lines to out.
func (t *Toolkit) SampleDEM(ctx context.Context, dem, filterWidth, increment, out string) error {
	flt := t.tempPath("flt", ".grd")
	if _, err := t.run(ctx, ToolGMT, nil, false, "grdfilter", dem, "-D2", "-Fg"+filterWidth, "-I"+increment, "-G"+flt); err != nil {
		return err
	}
	res, err := t.run(ctx, ToolGMT, nil, true, "grd2xyz", "--FORMAT_FLOAT_OUT=%lf", flt, "-s")
	if err != nil {
		return err
	}
	return os.WriteFile(out, res.Stdout, 0o644)
}

// WriteGrid converts a correction surface to a GMT grid at out.
func (t *Toolkit) WriteGrid(ctx context.Context, s *grid.Surface, out string) error {
	xyz := t.tempPath("grid", ".xyz")
	if err := s.WriteXYZFile(xyz); err != nil {
		return err
	}
	_, err := t.run(ctx, ToolGMT, nil, false, "xyz2grd", xyz, "-R"+s.Region(), "-I"+s.Increment(), "-r", "-G"+out)
	return err
}

// OffsetFitter fits offset tables with fitoffset.csh.
type OffsetFitter struct {
	Kit           *Toolkit
	RangeParams   int
	AzimuthParams int
	SNRThreshold  float64
}

// Fit implements the resample fitter.
func (f *OffsetFitter) Fit(ctx context.Context, table offsets.Table) (*prm.Record, error) {
	path := f.Kit.tempPath("offset", ".dat")
	if err := table.WriteFile(path); err != nil {
		return nil, err
	}
	res, err := f.Kit.run(ctx, ToolFitOffset, nil, true,
		strconv.Itoa(f.RangeParams), strconv.Itoa(f.AzimuthParams), path,
		strconv.FormatFloat(f.SNRThreshold, 'f', -1, 64))
	if err != nil {
		return nil, err
	}
	rec, err := prm.Parse(bytes.NewReader(res.Stdout), ToolFitOffset)
	if err != nil {
		return nil, err
	}
	if !rec.Has(prm.KeyRShift) || !rec.Has(prm.KeyAShift) {
		return nil, fmt.Errorf("%s produced no shift terms", ToolFitOffset)
	}
	return rec, nil
}
