// Package baseline collects the time/perpendicular-baseline table of an
// acquisition stack and renders it.
package baseline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/topsalign/internal/timeutil"
)

// EpochYear is the year the baseline tool counts days from.
const EpochYear = 2014

// ErrNoRows is returned when rendering an empty table.
var ErrNoRows = errors.New("baseline table is empty")

// Row is one acquisition relative to the super-master.
type Row struct {
	Stem       string
	ClockStart float64 // SC_clock_start, yyyyddd.fraction
	Days       float64 // days since EpochYear-01-01
	BPar       float64 // parallel baseline (m)
	BPerp      float64 // perpendicular baseline (m)
}

// Year returns the fractional year of the row, the plot's x axis.
func (r Row) Year() float64 {
	return EpochYear + r.Days/365.25
}

// Acquired returns the acquisition start time.
func (r Row) Acquired() time.Time {
	return timeutil.ParseSCClock(r.ClockStart)
}

// Span returns the first and last acquisition times of the table.
func (t Table) Span() (first, last time.Time) {
	for i, r := range t {
		at := r.Acquired()
		if i == 0 || at.Before(first) {
			first = at
		}
		if i == 0 || at.After(last) {
			last = at
		}
	}
	return first, last
}

// ParseRow reads "stem clock days bpar bperp [...]".
func ParseRow(line string) (Row, error) {
	f := strings.Fields(line)
	if len(f) < 5 {
		return Row{}, fmt.Errorf("baseline row %q: need 5 fields, got %d", line, len(f))
	}
	vals := make([]float64, 4)
	for i := range vals {
		v, err := strconv.ParseFloat(f[i+1], 64)
		if err != nil {
			return Row{}, fmt.Errorf("baseline row %q field %d: %w", line, i+2, err)
		}
		vals[i] = v
	}
	return Row{Stem: f[0], ClockStart: vals[0], Days: vals[1], BPar: vals[2], BPerp: vals[3]}, nil
}

// Table is the ordered list of rows.
type Table []Row

// WriteTo writes one row per line.
func (t Table) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, r := range t {
		m, err := fmt.Fprintf(w, "%s %.10f %.0f %.6f %.6f\n", r.Stem, r.ClockStart, r.Days, r.BPar, r.BPerp)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// WriteFile writes the table to path.
func (t Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := t.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Parse reads a table, skipping blank lines.
func Parse(r io.Reader) (Table, error) {
	var t Table
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		row, err := ParseRow(line)
		if err != nil {
			return nil, err
		}
		t = append(t, row)
	}
	return t, sc.Err()
}

// ReadFile parses the table at path.
func ReadFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Bounds is a plot region.
type Bounds struct {
	XMin, XMax, YMin, YMax float64
}

// PlotBounds returns the year/perpendicular-baseline extent of t padded by
// half a year and 50 m.
func (t Table) PlotBounds() (Bounds, error) {
	if len(t) == 0 {
		return Bounds{}, ErrNoRows
	}
	xs := make([]float64, len(t))
	ys := make([]float64, len(t))
	for i, r := range t {
		xs[i] = r.Year()
		ys[i] = r.BPerp
	}
	return Bounds{
		XMin: floats.Min(xs) - 0.5,
		XMax: floats.Max(xs) + 0.5,
		YMin: floats.Min(ys) - 50,
		YMax: floats.Max(ys) + 50,
	}, nil
}
