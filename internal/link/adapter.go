package link

import (
	"time"

	"drink-detector/internal/models"

	"go.uber.org/zap"
)

// Sink accepts parsed readings without blocking
type Sink interface {
	Push(r models.Reading) bool
}

// Adapter is the notification callback. It runs on the radio stack's
// goroutine and must return quickly.
type Adapter struct {
	sink   Sink
	now    func() time.Time
	logger *zap.Logger
}

// NewAdapter creates a new link adapter
func NewAdapter(sink Sink, logger *zap.Logger) *Adapter {
	return &Adapter{
		sink:   sink,
		now:    time.Now,
		logger: logger,
	}
}

// Handle parses one payload and enqueues it. Bad payloads are logged and
// dropped; nothing propagates back to the caller.
func (a *Adapter) Handle(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Recovered from panic in notification handler", zap.Any("panic", r))
		}
	}()

	reading, err := Parse(payload, a.now())
	if err != nil {
		a.logger.Warn("Dropping malformed payload",
			zap.ByteString("payload", payload),
			zap.Error(err))
		return
	}

	if !a.sink.Push(reading) {
		a.logger.Warn("Delivery queue full, dropping sample",
			zap.Time("timestamp", reading.Timestamp))
		return
	}

	a.logger.Debug("Sample queued", zap.Time("timestamp", reading.Timestamp))
}
