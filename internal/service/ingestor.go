package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"drink-detector/internal/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// SampleWriter appends samples to the store
type SampleWriter interface {
	Insert(ctx context.Context, reading models.Reading) (int64, error)
}

// Ingestor validates and persists incoming samples
type Ingestor struct {
	store    SampleWriter
	validate *validator.Validate
	logger   *zap.Logger
}

// NewIngestor creates a new ingestion sink
func NewIngestor(store SampleWriter, logger *zap.Logger) *Ingestor {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Ingestor{
		store:    store,
		validate: v,
		logger:   logger,
	}
}

// Ingest validates a record and appends it with a null label
func (i *Ingestor) Ingest(ctx context.Context, record models.IngestRecord) error {
	reading, err := i.Validate(record)
	if err != nil {
		return err
	}

	id, err := i.store.Insert(ctx, reading)
	if err != nil {
		i.logger.Error("Failed to persist sample", zap.Error(err))
		return fmt.Errorf("failed to save sample: %w", err)
	}

	i.logger.Debug("Sample ingested",
		zap.Int64("id", id),
		zap.Time("timestamp", reading.Timestamp))

	return nil
}

// Validate checks presence and range of every field and coerces the record
func (i *Ingestor) Validate(record models.IngestRecord) (models.Reading, error) {
	if err := i.validate.Struct(record); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return models.Reading{}, &models.ValidationError{
				Field:  verrs[0].Field(),
				Reason: describe(verrs[0]),
			}
		}
		return models.Reading{}, &models.ValidationError{Reason: err.Error()}
	}

	ts, err := models.ParseTimestamp(*record.Timestamp)
	if err != nil {
		return models.Reading{}, &models.ValidationError{Field: "timestamp", Reason: err.Error()}
	}

	return models.Reading{
		Timestamp: ts,
		AX:        float64(*record.AX),
		AY:        float64(*record.AY),
		AZ:        float64(*record.AZ),
		GX:        float64(*record.GX),
		GY:        float64(*record.GY),
		GZ:        float64(*record.GZ),
		Pulse:     float64(*record.Pulse),
	}, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
