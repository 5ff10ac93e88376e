package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"drink-detector/internal/models"
	"drink-detector/internal/repository"
	"drink-detector/internal/service"

	"github.com/spf13/cobra"
)

func trainCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a classifier from the labeled samples and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := setup("drink-detector-train")
			if err != nil {
				return err
			}
			defer logger.Sync()

			if output != "" {
				cfg.Training.ModelPath = output
			}

			db, err := repository.NewDB(cfg.Database.Type, cfg.Database.Path, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.MigrateDB(db, cfg.Database.Type, logger); err != nil {
				return err
			}

			training, err := service.NewTrainingService(
				repository.NewSampleRepository(db, logger),
				repository.NewRunRepository(db, logger),
				cfg.Pipeline,
				cfg.Training,
				logger,
			)
			if err != nil {
				return err
			}

			run, err := training.RunSync(ctx)
			if err != nil {
				return err
			}

			printReport(os.Stdout, run)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "override training.model_path")
	return cmd
}

// printReport writes the held-out scores as a classification report table
func printReport(w io.Writer, run *models.TrainingRun) {
	r := run.Report

	fmt.Fprintf(w, "run %s: %d windows (train %d, test %d)\n\n", run.ID, run.WindowCount, r.TrainSize, r.TestSize)
	fmt.Fprintf(w, "%14s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")

	classes := make([]int, 0, len(r.Classes))
	for c := range r.Classes {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	for _, c := range classes {
		m := r.Classes[c]
		fmt.Fprintf(w, "%14d %10.2f %10.2f %10.2f %10d\n", c, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%14s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.TestSize)
	fmt.Fprintf(w, "%14s %10.2f %10.2f %10.2f %10d\n", "macro avg",
		r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(w, "%14s %10.2f %10.2f %10.2f %10d\n", "weighted avg",
		r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	fmt.Fprintf(w, "\nmodel saved to %s\n", run.ModelPath)
}
