package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"drink-detector/internal/config"
	"drink-detector/internal/delivery"
	"drink-detector/internal/link"
	"drink-detector/internal/stream"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func streamCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Forward device notifications to the ingestion endpoint",
		Long: `stream receives the wearable's notification payloads
(timestamp;ax;ay;az;gx;gy;gz;pulse) either from the MQTT topic a BLE gateway
publishes them on or one per line from stdin, and delivers each sample over
HTTP or Kafka. Failed deliveries are logged and dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runStream(ctx, source)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "override stream.source (mqtt or stdin)")
	return cmd
}

func runStream(ctx context.Context, sourceOverride string) error {
	cfg, logger, err := setup("drink-detector-stream")
	if err != nil {
		return err
	}
	defer logger.Sync()

	if sourceOverride != "" {
		cfg.Stream.Source = sourceOverride
	}

	src, err := newSource(cfg.Stream, logger)
	if err != nil {
		return err
	}

	deliverer, err := delivery.New(cfg, logger)
	if err != nil {
		return err
	}
	defer deliverer.Close()

	logger.Info("Streaming samples",
		zap.String("device_id", cfg.Stream.DeviceID),
		zap.String("source", cfg.Stream.Source),
		zap.String("delivery", cfg.Stream.Delivery))

	stats, err := stream.NewPipeline(src, deliverer, cfg.Stream.QueueCapacity, logger).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "delivered %d, failed %d, dropped %d\n", stats.Delivered, stats.Failed, stats.Dropped)
	return nil
}

func newSource(cfg config.StreamConfig, logger *zap.Logger) (link.Source, error) {
	switch cfg.Source {
	case "mqtt":
		return link.NewMQTTSource(cfg, logger)
	case "stdin":
		return link.NewLineSource(os.Stdin, logger), nil
	default:
		return nil, fmt.Errorf("unknown stream source %q", cfg.Source)
	}
}
