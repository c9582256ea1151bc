// Package gmtsar binds the processing stages to the GMTSAR and GMT
// command-line tools.
package gmtsar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/banshee-data/topsalign/internal/exttool"
	"github.com/banshee-data/topsalign/internal/fsutil"
	"github.com/banshee-data/topsalign/internal/offsets"
	"github.com/banshee-data/topsalign/internal/prm"
)

// Tool names.
const (
	ToolMakeTops      = "make_s1a_tops"
	ToolExtOrb        = "ext_orb_s1a"
	ToolCalcDopOrb    = "calc_dop_orb"
	ToolSATBaseline   = "SAT_baseline"
	ToolSATllt2rat    = "SAT_llt2rat"
	ToolStitchTops    = "stitch_tops"
	ToolResamp        = "resamp"
	ToolFitOffset     = "fitoffset.csh"
	ToolBaselineTable = "baseline_table.csh"
	ToolGMT           = "gmt"
)

// Tools lists every collaborator the pipeline may invoke.
var Tools = []string{
	ToolMakeTops, ToolExtOrb, ToolCalcDopOrb, ToolSATBaseline, ToolSATllt2rat,
	ToolStitchTops, ToolResamp, ToolFitOffset, ToolBaselineTable, ToolGMT,
}

// Toolkit runs the tools inside a product directory. Temporary records and
// tables go to a scratch directory owned by the caller.
type Toolkit struct {
	Runner  exttool.Runner
	Workdir string
	Scratch *fsutil.Scratch

	seq atomic.Int64
}

// New returns a toolkit for workdir using scratch for temporaries.
func New(r exttool.Runner, workdir string, scratch *fsutil.Scratch) *Toolkit {
	return &Toolkit{Runner: r, Workdir: workdir, Scratch: scratch}
}

// WithScratch returns a toolkit sharing the runner and workdir but writing
// temporaries to s.
func (t *Toolkit) WithScratch(s *fsutil.Scratch) *Toolkit {
	return New(t.Runner, t.Workdir, s)
}

func (t *Toolkit) tempPath(prefix, ext string) string {
	return t.Scratch.Path(fmt.Sprintf("%s%d%s", prefix, t.seq.Add(1), ext))
}

func (t *Toolkit) writeTemp(prefix string, rec *prm.Record) (string, error) {
	path := t.tempPath(prefix, ".PRM")
	if err := prm.WriteFile(path, rec); err != nil {
		return "", err
	}
	return path, nil
}

func (t *Toolkit) run(ctx context.Context, name string, stdin io.Reader, expect bool, args ...string) (*exttool.Result, error) {
	return t.Runner.Run(ctx, exttool.Command{
		Name:         name,
		Args:         args,
		Dir:          t.Workdir,
		Stdin:        stdin,
		ExpectOutput: expect,
	})
}

// dopplerKeys must all be present in calc_dop_orb output.
var dopplerKeys = []string{prm.KeyFD1, prm.KeyEarthRadius}

// Doppler runs calc_dop_orb on a copy of rec and returns rec extended with
// the computed terms. Output lacking the doppler centroid or earth radius
// is a ToolError wrapping exttool.ErrNoOutput.
func (t *Toolkit) Doppler(ctx context.Context, rec *prm.Record, earthRadius float64) (*prm.Record, error) {
	in, err := t.writeTemp("junk", rec)
	if err != nil {
		return nil, err
	}
	out := t.tempPath("dop", ".PRM")
	args := []string{in, out, formatRadius(earthRadius), "0"}
	if _, err := t.run(ctx, ToolCalcDopOrb, nil, false, args...); err != nil {
		return nil, err
	}
	terms, err := prm.ReadFile(out)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &exttool.ToolError{Tool: ToolCalcDopOrb, Args: args, Err: exttool.ErrNoOutput}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s output: %w", ToolCalcDopOrb, err)
	}
	for _, k := range dopplerKeys {
		if _, err := terms.Float(k); err != nil {
			return nil, &exttool.ToolError{Tool: ToolCalcDopOrb, Args: args, Err: fmt.Errorf("%w: %v", exttool.ErrNoOutput, err)}
		}
	}
	merged := rec.Clone()
	merged.Merge(terms)
	return merged, nil
}

func formatRadius(r float64) string {
	if r == 0 {
		return "0"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// TiePoint runs SAT_baseline and returns its tie point.
func (t *Toolkit) TiePoint(ctx context.Context, master, slave *prm.Record) (float64, float64, error) {
	m, err := t.writeTemp("tiem", master)
	if err != nil {
		return 0, 0, err
	}
	s, err := t.writeTemp("ties", slave)
	if err != nil {
		return 0, 0, err
	}
	res, err := t.run(ctx, ToolSATBaseline, nil, true, m, s)
	if err != nil {
		return 0, 0, err
	}
	out, err := prm.Parse(bytes.NewReader(res.Stdout), ToolSATBaseline)
	if err != nil {
		return 0, 0, err
	}
	lon, err := out.Float("lon_tie_point")
	if err != nil {
		return 0, 0, err
	}
	lat, err := out.Float("lat_tie_point")
	if err != nil {
		return 0, 0, err
	}
	return lon, lat, nil
}

// Project runs SAT_llt2rat on "lon lat height" lines and returns the
// range/azimuth of each.
func (t *Toolkit) Project(ctx context.Context, rec *prm.Record, llt io.Reader) ([]offsets.Point, error) {
	path, err := t.writeTemp("llt", rec)
	if err != nil {
		return nil, err
	}
	res, err := t.run(ctx, ToolSATllt2rat, llt, true, path, "1")
	if err != nil {
		return nil, err
	}
	return parseProjection(res.Stdout)
}

func parseProjection(out []byte) ([]offsets.Point, error) {
	var pts []offsets.Point
	for i, line := range strings.Split(string(out), "\n") {
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		if len(f) < 2 {
			return nil, fmt.Errorf("%s line %d: need range and azimuth, got %q", ToolSATllt2rat, i+1, line)
		}
		r, err := strconv.ParseFloat(f[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", ToolSATllt2rat, i+1, err)
		}
		a, err := strconv.ParseFloat(f[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", ToolSATllt2rat, i+1, err)
		}
		pts = append(pts, offsets.Point{Range: r, Azimuth: a})
	}
	return pts, nil
}

// FormImage runs make_s1a_tops. Mode 0 writes the PRM and LED only; mode 1
// also writes the SLC, optionally resampled by range/azimuth shift grids.
func (t *Toolkit) FormImage(ctx context.Context, annotation, pixels, stem string, mode int, shiftGrids ...string) error {
	args := []string{annotation, pixels, stem, strconv.Itoa(mode)}
	args = append(args, shiftGrids...)
	_, err := t.run(ctx, ToolMakeTops, nil, false, args...)
	return err
}

// ApplyOrbit runs ext_orb_s1a to attach precise orbits to stem.
func (t *Toolkit) ApplyOrbit(ctx context.Context, stem, orbit string) error {
	_, err := t.run(ctx, ToolExtOrb, nil, false, stem+".PRM", orbit, stem)
	return err
}

// Combine implements the stitch combiner with stitch_tops.
func (t *Toolkit) Combine(ctx context.Context, stems []string, outStem string) error {
	list := t.tempPath("stitchlist", "")
	if err := os.WriteFile(list, []byte(strings.Join(stems, "\n")+"\n"), 0o644); err != nil {
		return err
	}
	_, err := t.run(ctx, ToolStitchTops, nil, false, list, outStem)
	return err
}

// Resample implements the resampling engine with resamp.
func (t *Toolkit) Resample(ctx context.Context, masterPRM, slavePRM, outPRM, outSLC string) error {
	_, err := t.run(ctx, ToolResamp, nil, false, masterPRM, slavePRM, outPRM, outSLC, "1")
	return err
}
