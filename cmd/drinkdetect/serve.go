package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"drink-detector/internal/delivery"
	"drink-detector/internal/handler"
	"drink-detector/internal/repository"
	"drink-detector/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion, labeling and training API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, logger, err := setup("drink-detector-api")
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting drink detector API...")

	db, err := repository.NewDB(cfg.Database.Type, cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.MigrateDB(db, cfg.Database.Type, logger); err != nil {
		return err
	}

	samples := repository.NewSampleRepository(db, logger)
	runs := repository.NewRunRepository(db, logger)

	ingestor := service.NewIngestor(samples, logger)
	labeler := service.NewLabeler(samples, logger)
	training, err := service.NewTrainingService(samples, runs, cfg.Pipeline, cfg.Training, logger)
	if err != nil {
		return err
	}
	defer training.Wait()

	if cfg.Kafka.Enabled {
		consumer := delivery.NewKafkaIngestor(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, ingestor, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Kafka ingest consumer failed", zap.Error(err))
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.NewHandler(ingestor, labeler, training, logger))

	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("Drink detector API is running",
		zap.String("address", serverAddr),
		zap.String("database", cfg.Database.Type),
		zap.Bool("kafka_ingest", cfg.Kafka.Enabled))

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}
