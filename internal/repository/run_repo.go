package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drink-detector/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type runRow struct {
	ID           string         `db:"id"`
	Status       string         `db:"status"`
	WindowCount  int            `db:"window_count"`
	Report       sql.NullString `db:"report"`
	ModelPath    string         `db:"model_path"`
	CreatedAt    time.Time      `db:"created_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	ErrorMessage string         `db:"error_message"`
}

// RunRepository stores training run progress
type RunRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB, logger *zap.Logger) *RunRepository {
	return &RunRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRun inserts a new training run
func (r *RunRepository) CreateRun(ctx context.Context, run *models.TrainingRun) error {
	query := `
		INSERT INTO training_runs (id, status, window_count, model_path, created_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(query),
			run.ID, string(run.Status), run.WindowCount, run.ModelPath, run.CreatedAt, run.ErrorMessage)
		if err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		return nil
	})
}

// UpdateRun updates run progress
func (r *RunRepository) UpdateRun(ctx context.Context, run *models.TrainingRun) error {
	var report sql.NullString
	if run.Report != nil {
		data, err := json.Marshal(run.Report)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		report = sql.NullString{String: string(data), Valid: true}
	}

	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}

	query := `
		UPDATE training_runs
		SET status = ?, window_count = ?, report = ?, model_path = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`

	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(query),
			string(run.Status), run.WindowCount, report, run.ModelPath, completedAt, run.ErrorMessage, run.ID)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
		return nil
	})
}

// GetRun retrieves a run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.TrainingRun, error) {
	query := `
		SELECT id, status, window_count, report, model_path, created_at, completed_at, error_message
		FROM training_runs
		WHERE id = ?
	`

	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run := &models.TrainingRun{
		ID:           row.ID,
		Status:       models.RunStatus(row.Status),
		WindowCount:  row.WindowCount,
		ModelPath:    row.ModelPath,
		CreatedAt:    row.CreatedAt,
		ErrorMessage: row.ErrorMessage,
	}
	if row.CompletedAt.Valid {
		completed := row.CompletedAt.Time
		run.CompletedAt = &completed
	}
	if row.Report.Valid {
		var report models.Report
		if err := json.Unmarshal([]byte(row.Report.String), &report); err != nil {
			r.logger.Error("Failed to decode stored report", zap.String("run_id", id), zap.Error(err))
		} else {
			run.Report = &report
		}
	}

	return run, nil
}
