package baseline

import (
	"path/filepath"
	"sync"
)

// Output file names.
const (
	TableFile = "baseline_table.dat"
	PNGFile   = "baseline.png"
	HTMLFile  = "baseline.html"
)

// Artifacts are the files written by Finish.
type Artifacts struct {
	Table string
	PNG   string
	HTML  string
}

// Builder accumulates rows and writes the terminal artifacts into Dir.
type Builder struct {
	Dir string

	mu   sync.Mutex
	rows Table
}

// NewBuilder returns a builder writing into dir.
func NewBuilder(dir string) *Builder {
	return &Builder{Dir: dir}
}

// Add appends a row.
func (b *Builder) Add(r Row) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, r)
}

// Rows returns a copy of the rows added so far.
func (b *Builder) Rows() Table {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append(Table(nil), b.rows...)
}

// Finish writes the table, the PNG plot and the HTML chart.
func (b *Builder) Finish() (*Artifacts, error) {
	rows := b.Rows()
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	a := &Artifacts{
		Table: filepath.Join(b.Dir, TableFile),
		PNG:   filepath.Join(b.Dir, PNGFile),
		HTML:  filepath.Join(b.Dir, HTMLFile),
	}
	if err := rows.WriteFile(a.Table); err != nil {
		return nil, err
	}
	if err := rows.SavePNG(a.PNG); err != nil {
		return nil, err
	}
	if err := rows.SaveHTML(a.HTML); err != nil {
		return nil, err
	}
	return a, nil
}
