// Package stitch joins the consecutive frames of one acquisition line into
// a single product.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/topsalign/internal/fsutil"
	"github.com/banshee-data/topsalign/internal/prm"
)

var (
	// ErrNoParts is returned when there is nothing to stitch.
	ErrNoParts = errors.New("no parts to stitch")
	// ErrOutOfOrder is returned when parts are not strictly ascending in time.
	ErrOutOfOrder = errors.New("parts out of acquisition order")
	// ErrPRFMismatch is returned when parts do not share a pulse rate.
	ErrPRFMismatch = errors.New("parts have different PRF")
)

// prfTolerance is the relative PRF difference accepted between parts.
const prfTolerance = 1e-9

// Part is one frame to stitch. Record is loaded from the store when nil.
type Part struct {
	Stem   string
	Record *prm.Record
}

// Product is a stitched line.
type Product struct {
	Stem string
	PRM  string
	SLC  string
	LED  string
}

// Combiner merges several frames into outStem. Seam handling is its own.
type Combiner interface {
	Combine(ctx context.Context, stems []string, outStem string) error
}

// Stitcher validates parts and produces the line product.
type Stitcher struct {
	Store    *prm.Store
	Combiner Combiner
}

// NewStitcher returns a stitcher writing into store's directory.
func NewStitcher(store *prm.Store, c Combiner) *Stitcher {
	return &Stitcher{Store: store, Combiner: c}
}

// Stitch checks ordering and PRF, then either renames a single part to
// outStem or delegates several to the combiner.
func (s *Stitcher) Stitch(ctx context.Context, line string, parts []Part, outStem string) (*Product, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("line %s: %w", line, ErrNoParts)
	}
	if err := s.validate(line, parts); err != nil {
		return nil, err
	}

	if len(parts) == 1 {
		if err := s.single(parts[0], outStem); err != nil {
			return nil, fmt.Errorf("line %s: %w", line, err)
		}
	} else {
		stems := make([]string, len(parts))
		for i, p := range parts {
			stems[i] = p.Stem
		}
		if err := s.Combiner.Combine(ctx, stems, outStem); err != nil {
			return nil, fmt.Errorf("line %s: stitch %d parts: %w", line, len(parts), err)
		}
	}

	return &Product{
		Stem: outStem,
		PRM:  s.Store.Path(outStem),
		SLC:  s.Store.SLCPath(outStem),
		LED:  s.Store.LEDPath(outStem),
	}, nil
}

func (s *Stitcher) validate(line string, parts []Part) error {
	var prevClock, refPRF float64
	for i := range parts {
		rec := parts[i].Record
		if rec == nil {
			var err error
			rec, err = s.Store.Load(parts[i].Stem)
			if err != nil {
				return fmt.Errorf("line %s: %w", line, err)
			}
			parts[i].Record = rec
		}
		clock, err := rec.Float(prm.KeyClockStart)
		if err != nil {
			return err
		}
		prf, err := rec.Float(prm.KeyPRF)
		if err != nil {
			return err
		}
		if i == 0 {
			prevClock, refPRF = clock, prf
			continue
		}
		if clock <= prevClock {
			return fmt.Errorf("line %s: %w: %s starts at %.12f, not after %.12f", line, ErrOutOfOrder, parts[i].Stem, clock, prevClock)
		}
		if math.Abs(prf-refPRF) > prfTolerance*math.Abs(refPRF) {
			return fmt.Errorf("line %s: %w: %s has %v, %s has %v", line, ErrPRFMismatch, parts[i].Stem, prf, parts[0].Stem, refPRF)
		}
		prevClock = clock
	}
	return nil
}

// single copies the PRM and LED, renames the SLC and points the copied
// record at its new files. Every other PRM line is kept as is.
func (s *Stitcher) single(p Part, outStem string) error {
	if err := fsutil.CopyFile(s.Store.LEDPath(p.Stem), s.Store.LEDPath(outStem)); err != nil {
		return fmt.Errorf("copy LED: %w", err)
	}
	if err := fsutil.Move(s.Store.SLCPath(p.Stem), s.Store.SLCPath(outStem)); err != nil {
		return fmt.Errorf("rename SLC: %w", err)
	}

	rec, err := s.Store.Load(p.Stem)
	if err != nil {
		return err
	}
	rec.Set(prm.KeyInputFile, outStem+".raw")
	rec.Set(prm.KeySLCFile, outStem+".SLC")
	rec.Set(prm.KeyLEDFile, outStem+".LED")
	return s.Store.Save(outStem, rec)
}
