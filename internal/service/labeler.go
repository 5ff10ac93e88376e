package service

import (
	"context"
	"fmt"
	"time"

	"drink-detector/internal/models"

	"go.uber.org/zap"
)

// DefaultUnlabeledLimit is used when a caller does not pass a limit
const DefaultUnlabeledLimit = 200

// LabelStore is the part of the sample store the labeler needs
type LabelStore interface {
	SetLabel(ctx context.Context, id int64, label int) (int64, error)
	SetLabelBatch(ctx context.Context, ids []int64, label int) (int64, error)
	SetLabelRange(ctx context.Context, start, end time.Time, label int) (int64, error)
	ListUnlabeled(ctx context.Context, limit int) ([]models.Sample, error)
	All(ctx context.Context) ([]models.Sample, error)
	Stats(ctx context.Context) (models.LabelStats, error)
}

// Labeler assigns labels to stored samples
type Labeler struct {
	store  LabelStore
	logger *zap.Logger
}

// NewLabeler creates a new labeling service
func NewLabeler(store LabelStore, logger *zap.Logger) *Labeler {
	return &Labeler{
		store:  store,
		logger: logger,
	}
}

// LabelByID labels one sample. Unknown ids are not an error.
func (l *Labeler) LabelByID(ctx context.Context, id int64, label int) error {
	if err := models.CheckLabel(label); err != nil {
		return err
	}

	affected, err := l.store.SetLabel(ctx, id, label)
	if err != nil {
		l.logger.Error("Failed to update label", zap.Int64("id", id), zap.Error(err))
		return err
	}

	l.logger.Info("Sample labeled",
		zap.Int64("id", id),
		zap.Int("label", label),
		zap.Int64("affected", affected))
	return nil
}

// LabelByBatch applies one label to every listed id
func (l *Labeler) LabelByBatch(ctx context.Context, ids []int64, label int) error {
	if err := models.CheckLabel(label); err != nil {
		return err
	}
	if len(ids) == 0 {
		return &models.ValidationError{Field: "ids", Reason: "must not be empty"}
	}

	affected, err := l.store.SetLabelBatch(ctx, ids, label)
	if err != nil {
		l.logger.Error("Failed to batch label", zap.Int("count", len(ids)), zap.Error(err))
		return err
	}

	l.logger.Info("Batch labeled",
		zap.Int("requested", len(ids)),
		zap.Int("label", label),
		zap.Int64("affected", affected))
	return nil
}

// LabelByRange labels every sample with start <= timestamp <= end
func (l *Labeler) LabelByRange(ctx context.Context, start, end time.Time, label int) error {
	if err := models.CheckLabel(label); err != nil {
		return err
	}
	if start.After(end) {
		return &models.ValidationError{Field: "start", Reason: "must not be after end"}
	}

	affected, err := l.store.SetLabelRange(ctx, start, end, label)
	if err != nil {
		l.logger.Error("Failed to label range", zap.Error(err))
		return err
	}

	l.logger.Info("Range labeled",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("label", label),
		zap.Int64("affected", affected))
	return nil
}

// ListUnlabeled returns at most limit unreviewed samples, oldest first
func (l *Labeler) ListUnlabeled(ctx context.Context, limit int) ([]models.Sample, error) {
	if limit <= 0 {
		return nil, &models.ValidationError{Field: "limit", Reason: "must be a positive integer"}
	}

	samples, err := l.store.ListUnlabeled(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlabeled samples: %w", err)
	}
	return samples, nil
}

// ExportAll returns every stored sample
func (l *Labeler) ExportAll(ctx context.Context) ([]models.Sample, error) {
	return l.store.All(ctx)
}

// Stats returns label counts
func (l *Labeler) Stats(ctx context.Context) (models.LabelStats, error) {
	return l.store.Stats(ctx)
}
