package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"drink-detector/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// batchChunk bounds the number of ids bound into one IN clause
const batchChunk = 500

const sampleColumns = `id, timestamp, ax, ay, az, gx, gy, gz, pulse, label`

type sampleRow struct {
	ID        int64         `db:"id"`
	Timestamp string        `db:"timestamp"`
	AX        float64       `db:"ax"`
	AY        float64       `db:"ay"`
	AZ        float64       `db:"az"`
	GX        float64       `db:"gx"`
	GY        float64       `db:"gy"`
	GZ        float64       `db:"gz"`
	Pulse     float64       `db:"pulse"`
	Label     sql.NullInt64 `db:"label"`
}

func (r sampleRow) toModel() (models.Sample, error) {
	ts, err := models.ParseTimestamp(r.Timestamp)
	if err != nil {
		return models.Sample{}, fmt.Errorf("row %d: %w", r.ID, err)
	}
	s := models.Sample{
		ID:        r.ID,
		Timestamp: ts,
		AX:        r.AX,
		AY:        r.AY,
		AZ:        r.AZ,
		GX:        r.GX,
		GY:        r.GY,
		GZ:        r.GZ,
		Pulse:     r.Pulse,
	}
	if r.Label.Valid {
		label := int(r.Label.Int64)
		s.Label = &label
	}
	return s, nil
}

// SampleRepository is the append-only sensor_data store
type SampleRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSampleRepository creates a new repository
func NewSampleRepository(db *sqlx.DB, logger *zap.Logger) *SampleRepository {
	return &SampleRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends one unlabeled sample and returns its id
func (r *SampleRepository) Insert(ctx context.Context, reading models.Reading) (int64, error) {
	query := `
		INSERT INTO sensor_data (timestamp, ax, ay, az, gx, gy, gz, pulse, label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		RETURNING id
	`

	var id int64
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx, tx.Rebind(query),
			models.FormatTimestamp(reading.Timestamp),
			reading.AX, reading.AY, reading.AZ,
			reading.GX, reading.GY, reading.GZ,
			reading.Pulse,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert sample: %w", err)
	}

	return id, nil
}

// SetLabel labels one sample. A missing id affects nothing.
func (r *SampleRepository) SetLabel(ctx context.Context, id int64, label int) (int64, error) {
	var affected int64
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE sensor_data SET label = ? WHERE id = ?`), label, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update label: %w", err)
	}
	return affected, nil
}

// SetLabelBatch labels every listed sample in one transaction
func (r *SampleRepository) SetLabelBatch(ctx context.Context, ids []int64, label int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var affected int64
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for start := 0; start < len(ids); start += batchChunk {
			end := min(start+batchChunk, len(ids))

			query, args, err := sqlx.In(`UPDATE sensor_data SET label = ? WHERE id IN (?)`, label, ids[start:end])
			if err != nil {
				return err
			}

			res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			affected += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to batch label: %w", err)
	}
	return affected, nil
}

// SetLabelRange labels every sample with start <= timestamp <= end
func (r *SampleRepository) SetLabelRange(ctx context.Context, start, end time.Time, label int) (int64, error) {
	query := `UPDATE sensor_data SET label = ? WHERE timestamp >= ? AND timestamp <= ?`

	var affected int64
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(query), label,
			models.FormatTimestamp(start), models.FormatTimestamp(end))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to label range: %w", err)
	}
	return affected, nil
}

// ListUnlabeled returns the most recent limit unlabeled samples, oldest first
func (r *SampleRepository) ListUnlabeled(ctx context.Context, limit int) ([]models.Sample, error) {
	query := `SELECT ` + sampleColumns + `
		FROM sensor_data
		WHERE label IS NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`

	samples, err := r.selectSamples(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlabeled samples: %w", err)
	}

	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

// All returns every sample ordered by id
func (r *SampleRepository) All(ctx context.Context) ([]models.Sample, error) {
	samples, err := r.selectSamples(ctx, `SELECT `+sampleColumns+` FROM sensor_data ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	return samples, nil
}

// LabeledSnapshot reads every 0/1-labeled sample ordered by timestamp in one
// transaction, so the result is a consistent point-in-time view.
func (r *SampleRepository) LabeledSnapshot(ctx context.Context) ([]models.Sample, error) {
	query := `SELECT ` + sampleColumns + `
		FROM sensor_data
		WHERE label IN (0, 1)
		ORDER BY timestamp ASC, id ASC`

	var rows []sampleRow
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, query)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read labeled snapshot: %w", err)
	}
	return r.convert(rows)
}

// Stats counts samples by label state
func (r *SampleRepository) Stats(ctx context.Context) (models.LabelStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN label IS NULL THEN 1 ELSE 0 END), 0) AS unlabeled,
			COALESCE(SUM(CASE WHEN label = 1 THEN 1 ELSE 0 END), 0) AS positive,
			COALESCE(SUM(CASE WHEN label = 0 THEN 1 ELSE 0 END), 0) AS negative
		FROM sensor_data
	`

	var stats models.LabelStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return stats, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func (r *SampleRepository) selectSamples(ctx context.Context, query string, args ...any) ([]models.Sample, error) {
	var rows []sampleRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return r.convert(rows)
}

func (r *SampleRepository) convert(rows []sampleRow) ([]models.Sample, error) {
	samples := make([]models.Sample, 0, len(rows))
	for _, row := range rows {
		s, err := row.toModel()
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, nil
}
