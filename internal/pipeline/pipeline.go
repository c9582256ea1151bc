// Package pipeline drives a catalog of acquisition lines through baseline
// estimation (mode 1) or alignment and stitching onto the super-master
// (mode 2).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/topsalign/internal/baseline"
	"github.com/banshee-data/topsalign/internal/catalog"
	"github.com/banshee-data/topsalign/internal/exttool"
	"github.com/banshee-data/topsalign/internal/fsutil"
	"github.com/banshee-data/topsalign/internal/gmtsar"
	"github.com/banshee-data/topsalign/internal/monitoring"
	"github.com/banshee-data/topsalign/internal/prm"
	"github.com/banshee-data/topsalign/internal/resample"
	"github.com/banshee-data/topsalign/internal/timeutil"
)

// StalePatterns are removed from the workdir before a run.
var StalePatterns = []string{"*.PRM*", "*.SLC", "*.LED", "tmp*"}

// TopoFile is the sampled DEM inside the run scratch directory.
const TopoFile = "topo.llt"

// Pipeline runs one catalog through a mode.
type Pipeline struct {
	Opts     Options
	Runner   exttool.Runner
	Observer Observer
	Ledger   Ledger
	Clock    timeutil.Clock

	store *prm.Store
}

// New returns a pipeline running collaborators through r.
func New(opts Options, r exttool.Runner) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.New("pipeline requires a command runner")
	}
	return &Pipeline{
		Opts:     opts,
		Runner:   r,
		Observer: nopObserver{},
		Ledger:   nopLedger{},
		Clock:    timeutil.RealClock{},
		store:    prm.NewStore(opts.Workdir),
	}, nil
}

// LineReport is the outcome of one line.
type LineReport struct {
	Index    int
	Stem     string
	Status   LineStatus
	Err      error
	Duration time.Duration
}

// Report summarises a run.
type Report struct {
	Mode  Mode
	Lines []LineReport
	// Removed lists the stale files deleted before processing.
	Removed  []string
	Baseline *baseline.Artifacts
}

// Failed returns the reports of lines that did not complete.
func (r *Report) Failed() []LineReport {
	var out []LineReport
	for _, l := range r.Lines {
		if l.Status != StatusDone {
			out = append(out, l)
		}
	}
	return out
}

// CheckInputs loads the catalog and verifies that the catalog, the DEM and
// every orbit file exist. The DEM is required in both modes.
func (p *Pipeline) CheckInputs() (*catalog.Catalog, error) {
	if !fsutil.Exists(p.Opts.Catalog) {
		return nil, fmt.Errorf("%w: catalog %s", ErrMissingInput, p.Opts.Catalog)
	}
	if !fsutil.Exists(p.Opts.DEM) {
		return nil, fmt.Errorf("%w: DEM %s", ErrMissingInput, p.Opts.DEM)
	}
	cat, err := catalog.Load(p.Opts.Catalog)
	if err != nil {
		return nil, err
	}
	for _, l := range cat.Lines {
		if !fsutil.Exists(p.orbitPath(l.Orbit)) {
			return nil, fmt.Errorf("%w: orbit %s for line %d", ErrMissingInput, l.Orbit.Path, l.Index)
		}
	}
	return cat, nil
}

func (p *Pipeline) orbitPath(o catalog.OrbitFile) string {
	if filepath.IsAbs(o.Path) {
		return o.Path
	}
	return filepath.Join(p.Opts.Workdir, o.Path)
}

// Run processes every line of the catalog. The super-master line always
// runs first and its failure ends the run; later lines follow the error
// policy.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	cat, err := p.CheckInputs()
	if err != nil {
		return nil, err
	}
	report := &Report{Mode: p.Opts.Mode}

	patterns := StalePatterns
	if p.Opts.Mode == ModeBaseline {
		patterns = append(append([]string(nil), patterns...), baseline.TableFile)
	}
	report.Removed, err = fsutil.RemoveMatching(p.Opts.Workdir, patterns...)
	if err != nil {
		return report, fmt.Errorf("clean workdir: %w", err)
	}
	if n := len(report.Removed); n > 0 {
		monitoring.Logf("removed %d stale products from %s", n, p.Opts.Workdir)
	}

	scratch, err := fsutil.NewScratch(p.Opts.Workdir, "topsalign")
	if err != nil {
		return report, err
	}
	defer scratch.Remove()
	kit := gmtsar.New(p.Runner, p.Opts.Workdir, scratch)

	state := &RunState{Catalog: cat}
	if p.Opts.Mode == ModeAlign {
		state.Topo = scratch.Path(TopoFile)
		err := p.stage(ctx, "dem", cat.SuperMasterStem(), func(ctx context.Context) error {
			return kit.SampleDEM(ctx, p.Opts.DEM, p.Opts.DEMFilterWidth, p.Opts.DEMIncrement, state.Topo)
		})
		if err != nil {
			return report, fmt.Errorf("sample DEM: %w", err)
		}
	}

	monitoring.Logf("%s run: %d lines, super-master %s", p.Opts.Mode, len(cat.Lines), cat.SuperMaster().Stem())

	results := make([]LineReport, len(cat.Lines))
	rows := make([]*baseline.Row, len(cat.Lines))

	first := p.runLine(ctx, kit, state, cat.Lines[0], &rows[0])
	results[0] = first
	if first.Err != nil {
		report.Lines = results[:1]
		return report, first.Err
	}

	done := 1
	rest := cat.Lines[1:]
	if p.Opts.Workers > 1 && len(rest) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.Opts.Workers)
		for _, line := range rest {
			g.Go(func() error {
				res := p.runLine(gctx, kit, state, line, &rows[line.Index])
				results[line.Index] = res
				if res.Err != nil && p.Opts.OnError == FailFast {
					return res.Err
				}
				return nil
			})
		}
		err = g.Wait()
		for _, r := range results {
			if r.Stem != "" {
				report.Lines = append(report.Lines, r)
			}
		}
		if err != nil {
			return report, err
		}
	} else {
		for _, line := range rest {
			res := p.runLine(ctx, kit, state, line, &rows[line.Index])
			results[line.Index] = res
			done++
			if res.Err != nil && p.Opts.OnError == FailFast {
				report.Lines = results[:done]
				return report, res.Err
			}
		}
		report.Lines = results
	}

	if p.Opts.Mode == ModeBaseline {
		b := baseline.NewBuilder(p.Opts.Workdir)
		for _, r := range rows {
			if r != nil {
				b.Add(*r)
			}
		}
		err := p.stage(ctx, "plot", cat.SuperMasterStem(), func(context.Context) error {
			var err error
			report.Baseline, err = b.Finish()
			return err
		})
		if err != nil {
			return report, fmt.Errorf("baseline artifacts: %w", err)
		}
	}
	return report, nil
}

// runLine processes one line in its own scratch directory and records the
// outcome.
func (p *Pipeline) runLine(ctx context.Context, kit *gmtsar.Toolkit, state *RunState, line catalog.AcquisitionLine, row **baseline.Row) LineReport {
	start := p.Clock.Now()
	res := LineReport{Index: line.Index, Stem: line.Stem(), Status: StatusDone}

	ctx, end := p.Observer.Stage(ctx, "line", line.Stem())
	err := p.processLine(ctx, kit, state, line, row)
	end(err)

	res.Duration = p.Clock.Since(start)
	if err != nil {
		res.Err = &LineError{Line: line.Index, Stem: line.Stem(), Err: err}
		res.Status = StatusFailed
		if p.Opts.OnError == SkipLine && !state.Catalog.IsSuperMasterLine(line) {
			res.Status = StatusSkipped
			monitoring.Logf("skipping line %d (%s): %v", line.Index, line.Stem(), err)
		}
	} else {
		monitoring.Logf("line %d (%s) done in %s", line.Index, line.Stem(), res.Duration.Round(time.Millisecond))
	}
	p.Observer.LineFinished(p.Opts.Mode, line.Stem(), res.Status, res.Duration)
	if lerr := p.Ledger.RecordLine(context.WithoutCancel(ctx), line.Stem(), res.Status, err); lerr != nil {
		p.logLedger("line", line.Stem(), lerr)
	}
	return res
}

func (p *Pipeline) processLine(ctx context.Context, kit *gmtsar.Toolkit, state *RunState, line catalog.AcquisitionLine, row **baseline.Row) error {
	scratch, err := fsutil.NewScratch(p.Opts.Workdir, fmt.Sprintf("line%d", line.Index))
	if err != nil {
		return err
	}
	lc := &LineContext{Line: line, Scratch: scratch, Kit: kit.WithScratch(scratch)}
	defer func() {
		if err := lc.close(); err != nil {
			monitoring.Logf("remove scratch %s: %v", scratch.Dir, err)
		}
	}()

	monitoring.Logf("processing line %d: %s (%d images, orbit %s)", line.Index, line.Stem(), len(line.Images), line.Orbit.Path)
	if p.Opts.Mode == ModeBaseline {
		r, err := p.baselineLine(ctx, state, lc)
		if err != nil {
			return err
		}
		*row = r
		return nil
	}
	return p.alignLine(ctx, state, lc)
}

func (p *Pipeline) logLedger(what, stem string, err error) {
	monitoring.Logf("ledger: record %s %s: %v", what, stem, err)
}

func (p *Pipeline) stage(ctx context.Context, name, stem string, fn func(ctx context.Context) error) error {
	ctx, end := p.Observer.Stage(ctx, name, stem)
	err := fn(ctx)
	end(err)
	return err
}

func (p *Pipeline) fitter(kit *gmtsar.Toolkit) resample.Fitter {
	if p.Opts.Fitter == FitterFitOffset {
		return &gmtsar.OffsetFitter{
			Kit:           kit,
			RangeParams:   p.Opts.FitRangeParams,
			AzimuthParams: p.Opts.FitAzimuthParams,
			SNRThreshold:  p.Opts.FitSNRThreshold,
		}
	}
	return &resample.PolyFitter{
		RangeParams:   p.Opts.FitRangeParams,
		AzimuthParams: p.Opts.FitAzimuthParams,
		SNRThreshold:  p.Opts.FitSNRThreshold,
	}
}

// conditionDoppler runs the doppler stage on stem's record in place. The
// super-master line derives the run's earth radius; other lines reuse it.
func (p *Pipeline) conditionDoppler(ctx context.Context, state *RunState, lc *LineContext, stem string) error {
	rec, err := p.store.Load(stem)
	if err != nil {
		return err
	}
	super := state.Catalog.IsSuperMasterLine(lc.Line)
	radius := 0.0
	if !super {
		var ok bool
		if radius, ok = state.EarthRadius(); !ok {
			return errors.New("earth radius not derived from the super-master line")
		}
	}
	out, err := lc.Kit.Doppler(ctx, rec, radius)
	if err != nil {
		return err
	}
	if super {
		r, err := out.Float(prm.KeyEarthRadius)
		if err != nil {
			return err
		}
		state.SetEarthRadius(r)
		monitoring.Debugf("earth radius %.3f from %s", r, stem)
	}
	return p.store.Save(stem, out)
}
