// Package stream wires the device link to delivery: the source feeds the
// link adapter, the adapter fills the queue and a single consumer drains
// it into the deliverer.
package stream

import (
	"context"
	"errors"
	"fmt"

	"drink-detector/internal/delivery"
	"drink-detector/internal/link"
	"drink-detector/internal/models"
	"drink-detector/internal/queue"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stats counts what happened to queued samples
type Stats struct {
	Delivered int
	Failed    int
	Dropped   uint64
}

// Pipeline moves samples from a source to a deliverer
type Pipeline struct {
	source    link.Source
	queue     *queue.Queue[models.Reading]
	adapter   *link.Adapter
	deliverer delivery.Deliverer
	logger    *zap.Logger

	stats Stats
}

// NewPipeline creates a new streaming pipeline
func NewPipeline(source link.Source, deliverer delivery.Deliverer, capacity int, logger *zap.Logger) *Pipeline {
	q := queue.New[models.Reading](capacity)
	return &Pipeline{
		source:    source,
		queue:     q,
		adapter:   link.NewAdapter(q, logger),
		deliverer: deliverer,
		logger:    logger,
	}
}

// Run blocks until ctx is done or the source is exhausted and the queue
// drained. Samples still queued when ctx is cancelled are lost.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer p.queue.Close()
		if err := p.source.Run(gctx, p.adapter.Handle); err != nil {
			return fmt.Errorf("source failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return p.consume(gctx)
	})

	err := g.Wait()
	p.stats.Dropped = p.queue.Dropped()

	p.logger.Info("Stream stopped",
		zap.Int("delivered", p.stats.Delivered),
		zap.Int("failed", p.stats.Failed),
		zap.Uint64("dropped", p.stats.Dropped))

	return p.stats, err
}

func (p *Pipeline) consume(ctx context.Context) error {
	for {
		reading, err := p.queue.Pop(ctx)
		if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := p.deliverer.Deliver(ctx, reading); err != nil {
			p.stats.Failed++
			p.logger.Warn("Delivery failed, sample dropped",
				zap.Time("timestamp", reading.Timestamp),
				zap.Int("pending", p.queue.Len()),
				zap.Error(err))
			continue
		}
		p.stats.Delivered++
	}
}
