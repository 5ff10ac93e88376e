// drinkdetect collects wearable IMU samples, serves the labeling API and
// trains the drinking-gesture classifier.
package main

import (
	"context"
	"os"

	"drink-detector/internal/config"
	"drink-detector/internal/logger"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "drinkdetect",
		Short: "Drinking-gesture data collection and training",
		Long: `drinkdetect turns a wrist-worn IMU stream into a labeled dataset and a
drinking-gesture classifier.

Commands:
  serve    Run the ingestion, labeling and training API
  stream   Forward device notifications to the ingestion endpoint
  train    Train a classifier from the labeled samples and save it`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yml", "path to the YAML config file")

	root.AddCommand(
		serveCmd(),
		streamCmd(),
		trainCmd(),
	)

	if err := fang.Execute(context.Background(), root); err != nil {
		os.Exit(1)
	}
}

// setup loads the config and builds the logger every command starts with
func setup(service string) (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, service)
	if err != nil {
		return config.Config{}, nil, err
	}

	return cfg, log, nil
}
