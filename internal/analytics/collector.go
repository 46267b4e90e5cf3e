package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/smartgrocer/basket-analytics-platform/pkg/kafka"
)

// EventWriter is the producer surface collectors publish through.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector forwards usage events to Kafka without blocking the caller.
// Events are dropped when the buffer is full.
type Collector struct {
	producer EventWriter
	eventCh  chan kafka.Event
	dropped  atomic.Int64
	logger   *slog.Logger
	done     chan struct{}
}

func NewCollector(producer EventWriter, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan kafka.Event, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				if err := c.producer.Publish(ctx, event); err != nil {
					c.logger.Error("failed to publish analytics event", "error", err)
				}
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track queues an event keyed by dataset. It never blocks.
func (c *Collector) Track(key string, event any) {
	select {
	case c.eventCh <- kafka.Event{Key: key, Value: event}:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)",
			"dropped_total", c.dropped.Load(),
		)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			if err := c.producer.Publish(context.Background(), event); err != nil {
				c.logger.Error("failed to publish remaining event", "error", err)
			}
		default:
			return
		}
	}
}
