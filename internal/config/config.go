package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. It is loaded once and passed by value.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"` // SQLite path or PostgreSQL URL
		Type string `yaml:"type"` // "sqlite" or "postgres"
	} `yaml:"database"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "json" or "console"
	} `yaml:"log"`

	Stream   StreamConfig   `yaml:"stream"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Training TrainingConfig `yaml:"training"`
}

// StreamConfig configures the device link and delivery side
type StreamConfig struct {
	DeviceID      string        `yaml:"device_id"`
	Source        string        `yaml:"source"`   // "mqtt" or "stdin"
	Delivery      string        `yaml:"delivery"` // "http" or "kafka"
	Endpoint      string        `yaml:"endpoint"`
	Timeout       time.Duration `yaml:"timeout"`
	QueueCapacity int           `yaml:"queue_capacity"` // 0 means unbounded
	MQTT          MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig points at the BLE gateway broker
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Topic is the notification topic for the configured device
func (s StreamConfig) Topic() string {
	return fmt.Sprintf("%s/%s/imu", s.MQTT.TopicPrefix, s.DeviceID)
}

// KafkaConfig is used when samples travel through Kafka instead of HTTP
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
	Enabled bool     `yaml:"enabled"` // run the ingest consumer inside serve
}

// PipelineConfig holds the signal conditioning and windowing constants
type PipelineConfig struct {
	WindowSize   int     `yaml:"window_size" json:"window_size"`
	StepSize     int     `yaml:"step_size" json:"step_size"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
	Cutoff       float64 `yaml:"cutoff" json:"cutoff"`
	FilterOrder  int     `yaml:"filter_order" json:"filter_order"`
	UseFFT       bool    `yaml:"use_fft" json:"use_fft"`
}

// TrainingConfig holds the classifier constants
type TrainingConfig struct {
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`
	Trees        int     `yaml:"trees"`
	MaxDepth     int     `yaml:"max_depth"` // 0 grows trees until leaves are pure
	MinSplit     int     `yaml:"min_split"`
	ModelPath    string  `yaml:"model_path"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var config Config

	file, err := os.Open(configPath)
	if err != nil {
		return config, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return config, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Default returns a configuration with every default filled in
func Default() Config {
	var config Config
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "5000"
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}

	if c.Database.Path == "" {
		c.Database.Path = "./data/sensor_data.db"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Stream.Source == "" {
		c.Stream.Source = "mqtt"
	}

	if c.Stream.Delivery == "" {
		c.Stream.Delivery = "http"
	}

	if c.Stream.Endpoint == "" {
		c.Stream.Endpoint = "http://localhost:5000/api/v1/ingest"
	}

	if c.Stream.Timeout == 0 {
		c.Stream.Timeout = 5 * time.Second
	}

	if c.Stream.MQTT.Broker == "" {
		c.Stream.MQTT.Broker = "tcp://localhost:1883"
	}

	if c.Stream.MQTT.ClientID == "" {
		c.Stream.MQTT.ClientID = "drinkdetect-stream"
	}

	if c.Stream.MQTT.TopicPrefix == "" {
		c.Stream.MQTT.TopicPrefix = "wearable"
	}

	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "wearable.samples.raw"
	}

	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "drinkdetect-ingest"
	}

	// Two second windows with one second stride at 15 Hz
	if c.Pipeline.WindowSize == 0 {
		c.Pipeline.WindowSize = 30
	}

	if c.Pipeline.StepSize == 0 {
		c.Pipeline.StepSize = 15
	}

	if c.Pipeline.SamplingRate == 0 {
		c.Pipeline.SamplingRate = 15
	}

	if c.Pipeline.Cutoff == 0 {
		c.Pipeline.Cutoff = 2
	}

	if c.Pipeline.FilterOrder == 0 {
		c.Pipeline.FilterOrder = 2
	}

	if c.Training.TestFraction == 0 {
		c.Training.TestFraction = 0.2
	}

	if c.Training.Seed == 0 {
		c.Training.Seed = 42
	}

	if c.Training.Trees == 0 {
		c.Training.Trees = 100
	}

	if c.Training.MinSplit == 0 {
		c.Training.MinSplit = 2
	}

	if c.Training.ModelPath == "" {
		c.Training.ModelPath = "./data/drink_detection_model.json"
	}

	// Expand environment variables in secrets and addresses
	c.Database.Path = os.ExpandEnv(c.Database.Path)
	c.Stream.Endpoint = os.ExpandEnv(c.Stream.Endpoint)
	c.Stream.DeviceID = os.ExpandEnv(c.Stream.DeviceID)
	c.Stream.MQTT.Username = os.ExpandEnv(c.Stream.MQTT.Username)
	c.Stream.MQTT.Password = os.ExpandEnv(c.Stream.MQTT.Password)
}

// Validate rejects parameter combinations the pipeline cannot run with
func (c Config) Validate() error {
	var errs []error

	p := c.Pipeline
	if p.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.window_size must be positive"))
	}
	if p.StepSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.step_size must be positive"))
	}
	if p.SamplingRate <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.sampling_rate must be positive"))
	}
	if p.Cutoff <= 0 || p.Cutoff >= p.SamplingRate/2 {
		errs = append(errs, fmt.Errorf("pipeline.cutoff must lie in (0, %g)", p.SamplingRate/2))
	}
	if p.FilterOrder <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.filter_order must be positive"))
	}

	t := c.Training
	if t.TestFraction <= 0 || t.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("training.test_fraction must lie in (0, 1)"))
	}
	if t.Trees <= 0 {
		errs = append(errs, fmt.Errorf("training.trees must be positive"))
	}

	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown database.type %q", c.Database.Type))
	}

	switch c.Stream.Source {
	case "mqtt", "stdin":
	default:
		errs = append(errs, fmt.Errorf("unknown stream.source %q", c.Stream.Source))
	}

	switch c.Stream.Delivery {
	case "http", "kafka":
	default:
		errs = append(errs, fmt.Errorf("unknown stream.delivery %q", c.Stream.Delivery))
	}

	if c.Stream.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("stream.queue_capacity must not be negative"))
	}

	return errors.Join(errs...)
}
