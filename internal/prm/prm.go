// Package prm reads and edits PRM parameter records, the per-image
// "key = value" geometry files exchanged with the GMTSAR tools.
package prm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/topsalign/internal/timeutil"
)

// Well-known keys.
const (
	KeyClockStart   = "clock_start"
	KeyClockStop    = "clock_stop"
	KeySCClockStart = "SC_clock_start"
	KeySCClockStop  = "SC_clock_stop"
	KeyPRF          = "PRF"
	KeyNumRngBins   = "num_rng_bins"
	KeyNumLines     = "num_lines"
	KeyEarthRadius  = "earth_radius"
	KeyFD1          = "fd1"
	KeyRShift       = "rshift"
	KeyAShift       = "ashift"
	KeySubIntR      = "sub_int_r"
	KeySubIntA      = "sub_int_a"
	KeyStretchR     = "stretch_r"
	KeyStretchA     = "stretch_a"
	KeyAStretchR    = "a_stretch_r"
	KeyAStretchA    = "a_stretch_a"
	KeyInputFile    = "input_file"
	KeySLCFile      = "SLC_file"
	KeyLEDFile      = "led_file"
)

// ClockKeys are the four timing fields moved together when a record is
// shifted in azimuth.
var ClockKeys = []string{KeyClockStart, KeyClockStop, KeySCClockStart, KeySCClockStop}

// ErrKeyNotFound is wrapped by ParseError when a key is absent.
var ErrKeyNotFound = errors.New("key not found")

// ParseError reports a missing or malformed value.
type ParseError struct {
	File string
	Key  string
	Err  error
}

func (e *ParseError) Error() string {
	file := e.File
	if file == "" {
		file = "<memory>"
	}
	return fmt.Sprintf("prm %s: key %q: %v", file, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type entry struct {
	key   string
	value string
	raw   string
	dirty bool
}

// Record is an ordered PRM record. Unmodified lines are written back
// byte for byte; edited lines are rewritten as "key = value".
type Record struct {
	// Source is the file the record was read from, used in errors.
	Source  string
	entries []entry
}

// New returns an empty record.
func New() *Record { return &Record{} }

// Parse reads a record from r.
func Parse(r io.Reader, source string) (*Record, error) {
	rec := &Record{Source: source}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		e := entry{raw: line}
		if i := strings.IndexByte(line, '='); i > 0 {
			e.key = strings.TrimSpace(line[:i])
			e.value = strings.TrimSpace(line[i+1:])
		}
		rec.entries = append(rec.entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read prm %s: %w", source, err)
	}
	return rec, nil
}

// ReadFile parses the record stored at path.
func ReadFile(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

// WriteFile writes rec to path.
func WriteFile(path string, rec *Record) error {
	var buf bytes.Buffer
	if _, err := rec.WriteTo(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// WriteTo implements io.WriterTo.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, e := range r.entries {
		line := e.raw
		if e.dirty {
			line = e.key + " = " + e.value
		}
		m, err := io.WriteString(w, line+"\n")
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := &Record{Source: r.Source, entries: make([]entry, len(r.entries))}
	copy(c.entries, r.entries)
	return c
}

// Keys returns the distinct keys in file order.
func (r *Record) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, e := range r.entries {
		if e.key == "" || seen[e.key] {
			continue
		}
		seen[e.key] = true
		keys = append(keys, e.key)
	}
	return keys
}

// lookup returns the index of the last entry whose key token equals key.
// Later entries win, matching records extended by appending tool output.
func (r *Record) lookup(key string) int {
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].key == key {
			return i
		}
	}
	return -1
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool { return r.lookup(key) >= 0 }

// String returns the raw value of key.
func (r *Record) String(key string) (string, error) {
	i := r.lookup(key)
	if i < 0 {
		return "", &ParseError{File: r.Source, Key: key, Err: ErrKeyNotFound}
	}
	return r.entries[i].value, nil
}

// Float parses the first token of key's value.
func (r *Record) Float(key string) (float64, error) {
	s, err := r.String(key)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, &ParseError{File: r.Source, Key: key, Err: errors.New("empty value")}
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, &ParseError{File: r.Source, Key: key, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{File: r.Source, Key: key, Err: fmt.Errorf("non-finite value %q", fields[0])}
	}
	return v, nil
}

// Int parses key as an integer. Values written as floats ("21576.0") are
// accepted when they carry no fractional part.
func (r *Record) Int(key string) (int, error) {
	v, err := r.Float(key)
	if err != nil {
		return 0, err
	}
	if v != float64(int(v)) {
		return 0, &ParseError{File: r.Source, Key: key, Err: fmt.Errorf("not an integer: %v", v)}
	}
	return int(v), nil
}

// Set replaces every occurrence of key, appending it when absent.
func (r *Record) Set(key, value string) {
	found := false
	for i := range r.entries {
		if r.entries[i].key == key {
			r.entries[i].value = value
			r.entries[i].dirty = true
			found = true
		}
	}
	if !found {
		r.entries = append(r.entries, entry{key: key, value: value, dirty: true})
	}
}

// SetFloat stores v with 12 decimal places, the precision used for clock fields.
func (r *Record) SetFloat(key string, v float64) {
	r.Set(key, strconv.FormatFloat(v, 'f', 12, 64))
}

// SetInt stores an integer value.
func (r *Record) SetInt(key string, v int) {
	r.Set(key, strconv.Itoa(v))
}

// Merge copies every key of other into r, overriding existing values.
func (r *Record) Merge(other *Record) {
	if other == nil {
		return
	}
	for _, k := range other.Keys() {
		v, _ := other.String(k)
		r.Set(k, v)
	}
}

// ShiftClock moves the four clock fields by lines azimuth lines at the
// record's own PRF. Clock values are in days.
func (r *Record) ShiftClock(lines float64) error {
	prf, err := r.Float(KeyPRF)
	if err != nil {
		return err
	}
	return r.ShiftClockAt(lines, prf)
}

// ShiftClockAt is ShiftClock with an explicit pulse rate. The record is
// left untouched when prf is not positive or a clock key is missing.
func (r *Record) ShiftClockAt(lines, prf float64) error {
	if prf <= 0 || math.IsNaN(prf) || math.IsInf(prf, 0) {
		return &ParseError{File: r.Source, Key: KeyPRF, Err: fmt.Errorf("non-positive PRF %v", prf)}
	}
	for _, k := range ClockKeys {
		if _, err := r.Float(k); err != nil {
			return err
		}
	}
	delta := lines / prf / timeutil.SecondsPerDay
	for _, k := range ClockKeys {
		t, err := r.Float(k)
		if err != nil {
			return err
		}
		r.SetFloat(k, t+delta)
	}
	return nil
}
