package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/topsalign/internal/align"
	"github.com/banshee-data/topsalign/internal/baseline"
	"github.com/banshee-data/topsalign/internal/pipeline"
	"github.com/banshee-data/topsalign/internal/timeutil"
)

// Run status values stored in the runs table.
const (
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
)

// Run is one pipeline invocation. It implements pipeline.Ledger.
type Run struct {
	ID    string
	db    *DB
	clock timeutil.Clock
}

var _ pipeline.Ledger = (*Run)(nil)

// StartRun inserts a new run row and returns a ledger bound to it.
func (db *DB) StartRun(ctx context.Context, clock timeutil.Clock, mode pipeline.Mode, catalog, workdir string) (*Run, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	r := &Run{ID: uuid.NewString(), db: db, clock: clock}
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, mode, catalog, workdir, started_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, int(mode), catalog, workdir, clock.Now().UnixNano(), RunRunning)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

// Finish marks the run done or failed.
func (r *Run) Finish(ctx context.Context, runErr error) error {
	status := RunDone
	var msg sql.NullString
	if runErr != nil {
		status = RunFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE run_id = ?`,
		r.clock.Now().UnixNano(), status, msg, r.ID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	return nil
}

// RecordLine stores the outcome of a line. A rerun of the same line replaces it.
func (r *Run) RecordLine(ctx context.Context, stem string, status pipeline.LineStatus, lineErr error) error {
	var msg sql.NullString
	if lineErr != nil {
		msg = sql.NullString{String: lineErr.Error(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO line_results (run_id, stem, status, error, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, stem, string(status), msg, r.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("record line %s: %w", stem, err)
	}
	return nil
}

// RecordAlignment stores the alignment parameters of one slave subswath.
func (r *Run) RecordAlignment(ctx context.Context, lineStem, stem string, res *align.Result) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO alignments (run_id, line_stem, stem, nl, tmp_da, policy, samples) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, lineStem, stem, res.NL, res.TmpDA, res.Policy.String(), len(res.Samples))
	if err != nil {
		return fmt.Errorf("record alignment %s: %w", stem, err)
	}
	return nil
}

// RecordBaseline stores one baseline table row.
func (r *Run) RecordBaseline(ctx context.Context, row baseline.Row) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO baselines (run_id, stem, clock_start, days, b_par, b_perp) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, row.Stem, row.ClockStart, row.Days, row.BPar, row.BPerp)
	if err != nil {
		return fmt.Errorf("record baseline %s: %w", row.Stem, err)
	}
	return nil
}

// RunSummary is a row of the runs table.
type RunSummary struct {
	ID       string
	Mode     int
	Catalog  string
	Workdir  string
	Started  time.Time
	Finished *time.Time
	Status   string
	Error    string
}

// LineResult is a row of the line_results table.
type LineResult struct {
	Stem   string
	Status string
	Error  string
}

// AlignmentRecord is a row of the alignments table.
type AlignmentRecord struct {
	LineStem string
	Stem     string
	NL       int
	TmpDA    int
	Policy   string
	Samples  int
}

// Runs lists runs, most recent first.
func (db *DB) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, mode, catalog, workdir, started_at, finished_at, status, error FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s        RunSummary
			started  int64
			finished sql.NullInt64
			msg      sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Mode, &s.Catalog, &s.Workdir, &started, &finished, &s.Status, &msg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.Started = time.Unix(0, started).UTC()
		if finished.Valid {
			t := time.Unix(0, finished.Int64).UTC()
			s.Finished = &t
		}
		s.Error = msg.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// LineResults lists the line outcomes of a run in stem order.
func (db *DB) LineResults(ctx context.Context, runID string) ([]LineResult, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT stem, status, error FROM line_results WHERE run_id = ? ORDER BY stem`, runID)
	if err != nil {
		return nil, fmt.Errorf("query line results: %w", err)
	}
	defer rows.Close()

	var out []LineResult
	for rows.Next() {
		var (
			l   LineResult
			msg sql.NullString
		)
		if err := rows.Scan(&l.Stem, &l.Status, &msg); err != nil {
			return nil, fmt.Errorf("scan line result: %w", err)
		}
		l.Error = msg.String
		out = append(out, l)
	}
	return out, rows.Err()
}

// Alignments lists the alignment parameters of a run in stem order.
func (db *DB) Alignments(ctx context.Context, runID string) ([]AlignmentRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT line_stem, stem, nl, tmp_da, policy, samples FROM alignments WHERE run_id = ? ORDER BY stem`, runID)
	if err != nil {
		return nil, fmt.Errorf("query alignments: %w", err)
	}
	defer rows.Close()

	var out []AlignmentRecord
	for rows.Next() {
		var a AlignmentRecord
		if err := rows.Scan(&a.LineStem, &a.Stem, &a.NL, &a.TmpDA, &a.Policy, &a.Samples); err != nil {
			return nil, fmt.Errorf("scan alignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Baselines returns the baseline rows of a run in acquisition order.
func (db *DB) Baselines(ctx context.Context, runID string) ([]baseline.Row, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT stem, clock_start, days, b_par, b_perp FROM baselines WHERE run_id = ? ORDER BY clock_start`, runID)
	if err != nil {
		return nil, fmt.Errorf("query baselines: %w", err)
	}
	defer rows.Close()

	var out []baseline.Row
	for rows.Next() {
		var b baseline.Row
		if err := rows.Scan(&b.Stem, &b.ClockStart, &b.Days, &b.BPar, &b.BPerp); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
