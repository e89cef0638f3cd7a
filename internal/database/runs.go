package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dividendscout/pipeline/internal/models"
)

// CreatePipelineRun records the start of a pipeline invocation
func (db *DB) CreatePipelineRun(r *models.PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (mode, status, succeeded, failed, skipped, api_calls, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = models.RunStatusRunning
	}
	err := db.conn.QueryRow(query,
		r.Mode, r.Status, r.Succeeded, r.Failed, r.Skipped, r.APICalls, r.StartedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to create pipeline run: %w", err)
	}
	return nil
}

// FinalizePipelineRun records the outcome of a pipeline invocation
func (db *DB) FinalizePipelineRun(r *models.PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2, succeeded = $3, failed = $4, skipped = $5, api_calls = $6, finished_at = $7
		WHERE id = $1
	`
	now := time.Now()
	result, err := db.conn.Exec(query, r.ID, r.Status, r.Succeeded, r.Failed, r.Skipped, r.APICalls, now)
	if err != nil {
		return fmt.Errorf("failed to finalize pipeline run: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("pipeline run not found: %d", r.ID)
	}
	r.FinishedAt = &now
	return nil
}

// GetRecentPipelineRuns retrieves recent runs, newest first
func (db *DB) GetRecentPipelineRuns(limit int) ([]*models.PipelineRun, error) {
	query := `
		SELECT id, mode, status, succeeded, failed, skipped, api_calls, started_at, finished_at
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.PipelineRun
	for rows.Next() {
		var r models.PipelineRun
		var finishedAt sql.NullTime
		err := rows.Scan(&r.ID, &r.Mode, &r.Status, &r.Succeeded, &r.Failed, &r.Skipped, &r.APICalls, &r.StartedAt, &finishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// DeletePipelineRunsOlderThan removes run records older than the given
// time and returns the number of rows removed
func (db *DB) DeletePipelineRunsOlderThan(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM pipeline_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old pipeline runs: %w", err)
	}
	return result.RowsAffected()
}
