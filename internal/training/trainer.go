// Package training fits and evaluates the drink classifier on labeled
// feature windows and persists the result.
package training

import (
	"context"
	"fmt"
	"time"

	"drink-detector/internal/config"
	"drink-detector/internal/features"
	"drink-detector/internal/forest"

	"go.uber.org/zap"
)

// Trainer runs the split, fit and evaluate steps of a training run
type Trainer struct {
	cfg      config.TrainingConfig
	pipeline config.PipelineConfig
	logger   *zap.Logger
}

// NewTrainer creates a new trainer
func NewTrainer(cfg config.TrainingConfig, pipeline config.PipelineConfig, logger *zap.Logger) *Trainer {
	return &Trainer{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Train fits a forest on a stratified share of the windows and evaluates it
// on the rest. Nothing is written; the caller decides whether to Save.
func (t *Trainer) Train(ctx context.Context, vectors []features.Vector, labels []int) (*Artifact, error) {
	if len(vectors) != len(labels) {
		return nil, fmt.Errorf("have %d vectors but %d labels", len(vectors), len(labels))
	}

	trainIdx, testIdx, err := StratifiedSplit(labels, t.cfg.TestFraction, t.cfg.Seed)
	if err != nil {
		return nil, err
	}

	xTrain, yTrain := pick(vectors, labels, trainIdx)
	xTest, yTest := pick(vectors, labels, testIdx)

	t.logger.Info("Fitting classifier",
		zap.Int("train", len(trainIdx)),
		zap.Int("test", len(testIdx)),
		zap.Int("trees", t.cfg.Trees))

	start := time.Now()
	model, err := forest.Fit(ctx, xTrain, yTrain, forest.Params{
		Trees:    t.cfg.Trees,
		MaxDepth: t.cfg.MaxDepth,
		MinSplit: t.cfg.MinSplit,
		Seed:     t.cfg.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fit forest: %w", err)
	}

	report := Evaluate(yTest, model.PredictAll(xTest))
	report.TrainSize = len(trainIdx)

	t.logger.Info("Classifier evaluated",
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("macro_f1", report.MacroAvg.F1),
		zap.Duration("took", time.Since(start)))

	return &Artifact{
		Version:      ArtifactVersion,
		CreatedAt:    time.Now().UTC(),
		FeatureNames: features.Names(t.pipeline.UseFFT),
		Pipeline:     t.pipeline,
		Report:       report,
		Forest:       model,
	}, nil
}

func pick(vectors []features.Vector, labels []int, idx []int) ([][]float64, []int) {
	x := make([][]float64, len(idx))
	y := make([]int, len(idx))
	for i, j := range idx {
		x[i] = vectors[j]
		y[i] = labels[j]
	}
	return x, y
}
