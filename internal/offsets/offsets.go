// Package offsets holds correlation offset samples and the five-column
// table format (r dr a da snr) shared by grid construction and offset fitting.
package offsets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// DefaultSNR is the confidence assigned to geometric (DEM-projected) samples.
const DefaultSNR = 100

// Sample is one range/azimuth offset measurement.
type Sample struct {
	Range    float64
	DRange   float64
	Azimuth  float64
	DAzimuth float64
	SNR      float64
}

// Point is a projected pixel position.
type Point struct {
	Range   float64
	Azimuth float64
}

// Table is an ordered list of samples.
type Table []Sample

// ErrLengthMismatch is returned by Pair when the projections differ in length.
var ErrLengthMismatch = errors.New("projection lists differ in length")

// Pair builds samples from the same ground points projected into a
// master and a slave geometry: (r_m, r_s-r_m, a_m, a_s-a_m, snr).
func Pair(master, slave []Point, snr float64) (Table, error) {
	if len(master) != len(slave) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(master), len(slave))
	}
	t := make(Table, len(master))
	for i := range master {
		t[i] = Sample{
			Range:    master[i].Range,
			DRange:   slave[i].Range - master[i].Range,
			Azimuth:  master[i].Azimuth,
			DAzimuth: slave[i].Azimuth - master[i].Azimuth,
			SNR:      snr,
		}
	}
	return t, nil
}

// Within keeps samples strictly inside (0, rangeBins) x (0, lineBins).
func (t Table) Within(rangeBins, lineBins int) Table {
	out := make(Table, 0, len(t))
	rmax, amax := float64(rangeBins), float64(lineBins)
	for _, s := range t {
		if s.Range > 0 && s.Range < rmax && s.Azimuth > 0 && s.Azimuth < amax {
			out = append(out, s)
		}
	}
	return out
}

// Map returns a copy with f applied to every sample.
func (t Table) Map(f func(Sample) Sample) Table {
	out := make(Table, len(t))
	for i, s := range t {
		out[i] = f(s)
	}
	return out
}

// WriteTo writes the table in the fixed five-column format.
func (t Table) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, s := range t {
		m, err := fmt.Fprintf(bw, "%.6f %.6f %.6f %.6f %d\n", s.Range, s.DRange, s.Azimuth, s.DAzimuth, int(math.Round(s.SNR)))
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
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

// Parse reads a five-column table. Blank lines are skipped.
func Parse(r io.Reader) (Table, error) {
	var t Table
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 5 {
			return nil, fmt.Errorf("offset table line %d: want 5 columns, got %d", lineNo, len(fields))
		}
		var v [5]float64
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("offset table line %d column %d: %w", lineNo, i+1, err)
			}
			v[i] = x
		}
		if v[4] < 0 {
			return nil, fmt.Errorf("offset table line %d: negative snr %v", lineNo, v[4])
		}
		t = append(t, Sample{Range: v[0], DRange: v[1], Azimuth: v[2], DAzimuth: v[3], SNR: v[4]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
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
