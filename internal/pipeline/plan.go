package pipeline

import (
	"fmt"
	"io"
	"strings"
)

// ImagePlan is one frame a line will process.
type ImagePlan struct {
	Stem string
	Role string
}

// LinePlan describes the work for one line.
type LinePlan struct {
	Index  int
	Orbit  string
	Images []ImagePlan
	Output string
}

// Plan is what a run would do, without invoking any collaborator.
type Plan struct {
	Mode        Mode
	SuperMaster string
	Lines       []LinePlan
}

// Plan validates the inputs and describes the run.
func (p *Pipeline) Plan() (*Plan, error) {
	cat, err := p.CheckInputs()
	if err != nil {
		return nil, err
	}
	plan := &Plan{Mode: p.Opts.Mode, SuperMaster: cat.SuperMaster().Stem()}
	for _, l := range cat.Lines {
		lp := LinePlan{Index: l.Index, Orbit: l.Orbit.Path, Output: l.Stem()}
		images := l.Images
		if p.Opts.Mode == ModeBaseline {
			images = images[:1]
		}
		for _, img := range images {
			lp.Images = append(lp.Images, ImagePlan{Stem: img.Stem(), Role: img.Role.String()})
		}
		plan.Lines = append(plan.Lines, lp)
	}
	return plan, nil
}

// WriteTo prints the plan, one line per acquisition.
func (pl *Plan) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "mode %d (%s), super-master %s\n", int(pl.Mode), pl.Mode, pl.SuperMaster)
	for _, l := range pl.Lines {
		parts := make([]string, len(l.Images))
		for i, img := range l.Images {
			parts[i] = img.Stem + "[" + img.Role + "]"
		}
		fmt.Fprintf(&b, "line %d: %s -> %s (orbit %s)\n", l.Index, strings.Join(parts, " "), l.Output, l.Orbit)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
