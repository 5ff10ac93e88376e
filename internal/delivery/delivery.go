// Package delivery forwards queued readings to the ingestion sink, either
// over HTTP or through a Kafka topic.
package delivery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"drink-detector/internal/config"
	"drink-detector/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Deliverer sends one reading to the sink. A failed delivery is not retried.
type Deliverer interface {
	Deliver(ctx context.Context, r models.Reading) error
	Close() error
}

// New builds the deliverer selected by cfg.Stream.Delivery
func New(cfg config.Config, logger *zap.Logger) (Deliverer, error) {
	switch cfg.Stream.Delivery {
	case "http":
		return NewHTTPDeliverer(cfg.Stream.Endpoint, cfg.Stream.Timeout, logger), nil
	case "kafka":
		return NewKafkaDeliverer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Stream.DeviceID, logger), nil
	default:
		return nil, fmt.Errorf("unknown delivery %q", cfg.Stream.Delivery)
	}
}

// HTTPDeliverer posts each reading to the ingest endpoint
type HTTPDeliverer struct {
	client   *resty.Client
	endpoint string
	logger   *zap.Logger
}

// NewHTTPDeliverer creates a deliverer for endpoint
func NewHTTPDeliverer(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPDeliverer {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPDeliverer{
		client:   client,
		endpoint: endpoint,
		logger:   logger,
	}
}

// Deliver posts r; anything but 200 is an error
func (d *HTTPDeliverer) Deliver(ctx context.Context, r models.Reading) error {
	var failure struct {
		Error string `json:"error"`
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(r.Record()).
		SetError(&failure).
		Post(d.endpoint)
	if err != nil {
		return fmt.Errorf("failed to post sample: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		if failure.Error != "" {
			return fmt.Errorf("ingest returned status %d: %s", resp.StatusCode(), failure.Error)
		}
		return fmt.Errorf("ingest returned status %d", resp.StatusCode())
	}

	d.logger.Debug("Sample delivered", zap.Time("timestamp", r.Timestamp))
	return nil
}

// Close is a no-op; resty holds no resources that need releasing
func (d *HTTPDeliverer) Close() error {
	return nil
}
