package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"drink-detector/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDeliverer publishes readings keyed by device id so one device's
// samples stay ordered within a partition
type KafkaDeliverer struct {
	writer messageWriter
	key    []byte
	logger *zap.Logger
}

// NewKafkaDeliverer creates a synchronous producer for topic
func NewKafkaDeliverer(brokers []string, topic, deviceID string, logger *zap.Logger) *KafkaDeliverer {
	return &KafkaDeliverer{
		writer: newKafkaWriter(brokers, topic),
		key:    []byte(deviceID),
		logger: logger,
	}
}

// newKafkaWriter makes exactly one produce attempt per message. A retried
// produce whose first attempt was stored by the broker would duplicate it.
func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1,
		Async:        false,
	}
}

// Deliver writes r as one message
func (d *KafkaDeliverer) Deliver(ctx context.Context, r models.Reading) error {
	value, err := json.Marshal(r.Record())
	if err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}

	if err := d.writer.WriteMessages(ctx, kafka.Message{Key: d.key, Value: value}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	d.logger.Debug("Sample published", zap.Time("timestamp", r.Timestamp))
	return nil
}

// Close flushes and closes the producer
func (d *KafkaDeliverer) Close() error {
	return d.writer.Close()
}

// Ingester is the sink a consumed record is handed to
type Ingester interface {
	Ingest(ctx context.Context, record models.IngestRecord) error
}

// KafkaIngestor consumes the sample topic on the server side and feeds the
// ingestion sink. Each offset is committed before its record is ingested, so
// a message is never ingested twice and a poison message is skipped.
type KafkaIngestor struct {
	reader messageReader
	sink   Ingester
	logger *zap.Logger
}

// NewKafkaIngestor creates a consumer group member for topic
func NewKafkaIngestor(brokers []string, topic, groupID string, sink Ingester, logger *zap.Logger) *KafkaIngestor {
	return &KafkaIngestor{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
			StartOffset:    kafka.LastOffset,
		}),
		sink:   sink,
		logger: logger,
	}
}

// Run consumes until ctx is done
func (k *KafkaIngestor) Run(ctx context.Context) error {
	k.logger.Info("Kafka ingest consumer started")
	defer k.logger.Info("Kafka ingest consumer stopped")

	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit message: %w", err)
		}

		k.handle(ctx, msg)
	}
}

func (k *KafkaIngestor) handle(ctx context.Context, msg kafka.Message) {
	var record models.IngestRecord
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		k.logger.Warn("Skipping undecodable message",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return
	}

	if err := k.sink.Ingest(ctx, record); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			k.logger.Warn("Skipping invalid sample",
				zap.ByteString("device", msg.Key),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return
		}
		k.logger.Error("Failed to ingest sample",
			zap.ByteString("device", msg.Key),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
	}
}

// Close closes the consumer
func (k *KafkaIngestor) Close() error {
	return k.reader.Close()
}
