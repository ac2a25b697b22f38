package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run is one recorded reconciliation pass.
type Run struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	HadError   bool      `json:"had_error"`
	Units      []RunUnit `json:"units,omitempty"`
}

// RunUnit is one unit's result line within a run.
type RunUnit struct {
	UnitID      string  `json:"unit_id"`
	DisplayName string  `json:"display_name"`
	Action      string  `json:"action"`
	Line        string  `json:"line"`
	Error       *string `json:"error,omitempty"`
}

// RunRepository records and reads run history.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a repository over the given database.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Record stores one pass and its per-unit lines atomically.
func (r *RunRepository) Record(ctx context.Context, run Run) (int64, error) {
	var id int64
	err := r.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO runs (started_at, finished_at, had_error) VALUES (?, ?, ?)",
			run.StartedAt.UTC(), run.FinishedAt.UTC(), run.HadError,
		)
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading run id: %w", err)
		}

		for i, unit := range run.Units {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO run_units (run_id, position, unit_id, display_name, action, line, error)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, i, unit.UnitID, unit.DisplayName, unit.Action, unit.Line, unit.Error,
			)
			if err != nil {
				return fmt.Errorf("inserting run unit %s: %w", unit.UnitID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListRecent returns the most recent runs, newest first, without unit lines.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, started_at, finished_at, had_error FROM runs ORDER BY started_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.HadError); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Latest returns the most recent run including its unit lines, or nil when
// no run has been recorded yet.
func (r *RunRepository) Latest(ctx context.Context) (*Run, error) {
	var run Run
	err := r.db.QueryRowContext(ctx,
		"SELECT id, started_at, finished_at, had_error FROM runs ORDER BY started_at DESC, id DESC LIMIT 1",
	).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.HadError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest run: %w", err)
	}

	units, err := r.units(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Units = units

	return &run, nil
}

func (r *RunRepository) units(ctx context.Context, runID int64) ([]RunUnit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT unit_id, display_name, action, line, error
		 FROM run_units WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing run units: %w", err)
	}
	defer rows.Close()

	var units []RunUnit
	for rows.Next() {
		var unit RunUnit
		if err := rows.Scan(&unit.UnitID, &unit.DisplayName, &unit.Action, &unit.Line, &unit.Error); err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}
