package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"drink-detector/internal/config"
	"drink-detector/internal/dsp"
	"drink-detector/internal/features"
	"drink-detector/internal/models"
	"drink-detector/internal/training"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnapshotSource provides the labeled history in timestamp order
type SnapshotSource interface {
	LabeledSnapshot(ctx context.Context) ([]models.Sample, error)
}

// RunStore persists training run progress
type RunStore interface {
	CreateRun(ctx context.Context, run *models.TrainingRun) error
	UpdateRun(ctx context.Context, run *models.TrainingRun) error
	GetRun(ctx context.Context, id string) (*models.TrainingRun, error)
}

// TrainingService runs the offline pipeline from stored samples to a saved
// model artifact
type TrainingService struct {
	samples     SnapshotSource
	runs        RunStore
	conditioner *dsp.Conditioner
	trainer     *training.Trainer
	pipeline    config.PipelineConfig
	modelPath   string
	logger      *zap.Logger

	exclusive sync.Mutex
	inflight  sync.WaitGroup
}

// NewTrainingService creates a new training service
func NewTrainingService(
	samples SnapshotSource,
	runs RunStore,
	pipeline config.PipelineConfig,
	cfg config.TrainingConfig,
	logger *zap.Logger,
) (*TrainingService, error) {
	cond, err := dsp.NewConditioner(pipeline)
	if err != nil {
		return nil, err
	}

	return &TrainingService{
		samples:     samples,
		runs:        runs,
		conditioner: cond,
		trainer:     training.NewTrainer(cfg, pipeline, logger),
		pipeline:    pipeline,
		modelPath:   cfg.ModelPath,
		logger:      logger,
	}, nil
}

// StartRun registers a run and trains in the background
func (s *TrainingService) StartRun(ctx context.Context) (string, error) {
	run, err := s.newRun(ctx)
	if err != nil {
		return "", err
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		// the request that started the run may be gone long before it ends
		_ = s.execute(context.WithoutCancel(ctx), run)
	}()

	return run.ID, nil
}

// RunSync trains in the caller's goroutine and returns the finished run
func (s *TrainingService) RunSync(ctx context.Context) (*models.TrainingRun, error) {
	run, err := s.newRun(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// GetRun returns the current state of a run
func (s *TrainingService) GetRun(ctx context.Context, id string) (*models.TrainingRun, error) {
	return s.runs.GetRun(ctx, id)
}

// Wait blocks until every background run has finished
func (s *TrainingService) Wait() {
	s.inflight.Wait()
}

func (s *TrainingService) newRun(ctx context.Context) (*models.TrainingRun, error) {
	run := &models.TrainingRun{
		ID:        uuid.New().String(),
		Status:    models.RunPending,
		ModelPath: s.modelPath,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (s *TrainingService) execute(ctx context.Context, run *models.TrainingRun) error {
	s.exclusive.Lock()
	defer s.exclusive.Unlock()

	run.Status = models.RunRunning
	s.save(ctx, run)

	err := s.train(ctx, run)

	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	if err != nil {
		run.Status = models.RunFailed
		run.ErrorMessage = err.Error()
		s.logger.Error("Training run failed", zap.String("run_id", run.ID), zap.Error(err))
	} else {
		run.Status = models.RunCompleted
		s.logger.Info("Training run completed",
			zap.String("run_id", run.ID),
			zap.Int("windows", run.WindowCount),
			zap.Float64("accuracy", run.Report.Accuracy),
			zap.String("model_path", run.ModelPath))
	}
	s.save(ctx, run)

	return err
}

func (s *TrainingService) train(ctx context.Context, run *models.TrainingRun) error {
	samples, err := s.samples.LabeledSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read labeled samples: %w", err)
	}

	conditioned, err := s.conditioner.Condition(samples)
	if err != nil {
		return err
	}

	vectors, labels := features.Collect(features.Extract(
		conditioned, s.pipeline.WindowSize, s.pipeline.StepSize, s.pipeline.UseFFT))
	run.WindowCount = len(vectors)

	s.logger.Info("Features extracted",
		zap.String("run_id", run.ID),
		zap.Int("samples", len(samples)),
		zap.Int("windows", len(vectors)))

	artifact, err := s.trainer.Train(ctx, vectors, labels)
	if err != nil {
		return err
	}
	if err := artifact.Save(s.modelPath); err != nil {
		return err
	}

	run.Report = &artifact.Report
	return nil
}

func (s *TrainingService) save(ctx context.Context, run *models.TrainingRun) {
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		s.logger.Error("Failed to update run",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Error(err))
	}
}
