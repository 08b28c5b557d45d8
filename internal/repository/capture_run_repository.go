package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sathizz7/streetview-capturing-sys/internal/models"
)

// ErrRunNotFound reports a run id with no stored record, distinguishing a
// bad lookup from a database failure.
var ErrRunNotFound = errors.New("capture run not found")

// CaptureRunRepository handles database operations for capture runs
type CaptureRunRepository struct {
	db *sql.DB
}

// NewCaptureRunRepository creates a new capture run repository
func NewCaptureRunRepository(db *sql.DB) *CaptureRunRepository {
	return &CaptureRunRepository{db: db}
}

// Create inserts a new pending run record
func (r *CaptureRunRepository) Create(rec *models.CaptureRunRecord) error {
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = models.RunStatusPending
	}

	query := `
		INSERT INTO capture_runs (
			id, target_lat, target_lon, status, failure_kind,
			result_json, error_message, execution_ms, created_by,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		rec.ID,
		rec.TargetLat,
		rec.TargetLon,
		rec.Status,
		rec.FailureKind,
		rec.ResultJSON,
		rec.ErrorMessage,
		rec.ExecutionMS,
		rec.CreatedBy,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create capture run: %w", err)
	}
	return nil
}

// MarkRunning transitions a run to the running state
func (r *CaptureRunRepository) MarkRunning(id string) error {
	query := `UPDATE capture_runs SET status = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.Exec(query, models.RunStatusRunning, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	return nil
}

// Complete stores the terminal status and serialized result of a run
func (r *CaptureRunRepository) Complete(id, status, failureKind, resultJSON string, executionMS int64) error {
	query := `
		UPDATE capture_runs
		SET status = ?, failure_kind = ?, result_json = ?, execution_ms = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, status, failureKind, resultJSON, executionMS, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// MarkFailed records an execution failure that never produced a result
func (r *CaptureRunRepository) MarkFailed(id, message string) error {
	query := `
		UPDATE capture_runs
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, models.StatusError, message, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	return nil
}

// GetByID retrieves a run record by ID
func (r *CaptureRunRepository) GetByID(id string) (*models.CaptureRunRecord, error) {
	query := `
		SELECT id, target_lat, target_lon, status, failure_kind,
		       result_json, error_message, execution_ms, created_by,
		       created_at, updated_at
		FROM capture_runs WHERE id = ?
	`
	rec := &models.CaptureRunRecord{}
	err := r.db.QueryRow(query, id).Scan(
		&rec.ID,
		&rec.TargetLat,
		&rec.TargetLon,
		&rec.Status,
		&rec.FailureKind,
		&rec.ResultJSON,
		&rec.ErrorMessage,
		&rec.ExecutionMS,
		&rec.CreatedBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capture run: %w", err)
	}
	return rec, nil
}

// List retrieves run records with optional status filter
func (r *CaptureRunRepository) List(status string, limit, offset int) ([]*models.CaptureRunRecord, error) {
	query := `
		SELECT id, target_lat, target_lon, status, failure_kind,
		       result_json, error_message, execution_ms, created_by,
		       created_at, updated_at
		FROM capture_runs
	`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture runs: %w", err)
	}
	defer rows.Close()

	var records []*models.CaptureRunRecord
	for rows.Next() {
		rec := &models.CaptureRunRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.TargetLat,
			&rec.TargetLon,
			&rec.Status,
			&rec.FailureKind,
			&rec.ResultJSON,
			&rec.ErrorMessage,
			&rec.ExecutionMS,
			&rec.CreatedBy,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan capture run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
