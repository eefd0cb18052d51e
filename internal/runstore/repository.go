// Package runstore persists rollout suite reports and their trajectories.
// Trajectories are stored as msgpack blobs next to a summary row per run.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/disentangle/internal/database"
	"github.com/aristath/disentangle/internal/modules/rollout"
)

// Run is a stored report summary.
type Run struct {
	rollout.Report
	ArchiveKey string `json:"archive_key,omitempty"`
}

// StoredTrajectory is one persisted trial of a run.
type StoredTrajectory struct {
	Index       int                `json:"index"`
	Passed      bool               `json:"passed"`
	MinFidelity float64            `json:"min_fidelity"`
	Reason      string             `json:"reason,omitempty"`
	Trajectory  rollout.Trajectory `json:"trajectory"`
}

// Repository provides access to the runs and trajectories tables.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new run repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveReport stores the report summary and the simulator trajectory of every
// trial in one transaction.
func (r *Repository) SaveReport(rep rollout.Report) error {
	blobs := make([][]byte, len(rep.Results))
	for k, res := range rep.Results {
		data, err := rollout.MarshalTrajectory(res.Simulator)
		if err != nil {
			return fmt.Errorf("failed to encode trial %d of run %s: %w", k, rep.ID, err)
		}
		blobs[k] = data
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, kind, qubits, policy, trials, failed, pass_rate, mean_fidelity, min_fidelity, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.ID, rep.Kind, rep.Qubits, rep.Policy, rep.Trials, rep.Failed,
			rep.PassRate, rep.MeanFidelity, rep.MinFidelity, rep.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run %s: %w", rep.ID, err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO trajectories (run_id, idx, passed, min_fidelity, reason, data)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare trajectory insert: %w", err)
		}
		defer stmt.Close()

		for k, res := range rep.Results {
			if _, err := stmt.Exec(rep.ID, res.Index, res.Passed, res.MinFidelity, res.Reason, blobs[k]); err != nil {
				return fmt.Errorf("failed to insert trial %d of run %s: %w", res.Index, rep.ID, err)
			}
		}
		return nil
	})
}

// SetArchiveKey records where the run's bundle was uploaded.
func (r *Repository) SetArchiveKey(id, key string) error {
	res, err := r.db.Exec("UPDATE runs SET archive_key = ? WHERE id = ?", key, id)
	if err != nil {
		return fmt.Errorf("failed to set archive key of run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

const runColumns = "id, kind, qubits, policy, trials, failed, pass_rate, mean_fidelity, min_fidelity, archive_key, created_at"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run       Run
		archive   sql.NullString
		createdAt int64
	)
	err := s.Scan(&run.ID, &run.Kind, &run.Qubits, &run.Policy, &run.Trials, &run.Failed,
		&run.PassRate, &run.MeanFidelity, &run.MinFidelity, &archive, &createdAt)
	if err != nil {
		return Run{}, err
	}
	run.ArchiveKey = archive.String
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (r *Repository) ListRuns(limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, id"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given id, or nil, nil if it does not exist.
func (r *Repository) GetRun(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

// Trajectories returns the stored trials of a run in index order.
func (r *Repository) Trajectories(runID string) ([]StoredTrajectory, error) {
	rows, err := r.db.Query(`
		SELECT idx, passed, min_fidelity, reason, data
		FROM trajectories WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trajectories of run %s: %w", runID, err)
	}
	defer rows.Close()

	out := []StoredTrajectory{}
	for rows.Next() {
		var (
			st     StoredTrajectory
			reason sql.NullString
			data   []byte
		)
		if err := rows.Scan(&st.Index, &st.Passed, &st.MinFidelity, &reason, &data); err != nil {
			return nil, fmt.Errorf("failed to scan trajectory: %w", err)
		}
		st.Reason = reason.String
		if st.Trajectory, err = rollout.UnmarshalTrajectory(data); err != nil {
			return nil, fmt.Errorf("trial %d of run %s: %w", st.Index, runID, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes runs created before cutoff together with their
// trajectories and returns the number of runs deleted.
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	var deleted int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM trajectories
			WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`, cutoff.Unix()); err != nil {
			return fmt.Errorf("failed to delete trajectories: %w", err)
		}
		res, err := tx.Exec("DELETE FROM runs WHERE created_at < ?", cutoff.Unix())
		if err != nil {
			return fmt.Errorf("failed to delete runs: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
