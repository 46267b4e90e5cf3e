package dataset

import (
	"context"
	"log/slog"

	"github.com/smartgrocer/basket-analytics-platform/internal/ingestion"
	"github.com/smartgrocer/basket-analytics-platform/internal/normalizer"
	"github.com/smartgrocer/basket-analytics-platform/pkg/kafka"
	"github.com/smartgrocer/basket-analytics-platform/pkg/metrics"
)

// Loader wraps the Kafka consumer that feeds the store. On startup it
// replays the transaction topic from the beginning, so Start is typically
// run in its own goroutine while the HTTP surface comes up.
type Loader struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewLoader creates a Loader backed by the given Kafka consumer.
func NewLoader(kafkaConsumer *kafka.Consumer) *Loader {
	return &Loader{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "dataset-loader"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (l *Loader) Start(ctx context.Context) error {
	l.logger.Info("dataset loader starting")
	return l.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that decodes transaction
// events and appends them to the store. Undecodable messages are logged and
// skipped rather than blocking the partition.
func HandleMessage(store *Store, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "dataset-loader")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.TransactionEvent](value)
		if err != nil {
			logger.Error("failed to decode transaction event",
				"error", err,
				"key", string(key),
			)
			return nil
		}

		date, err := normalizer.ParseDate(event.Date)
		if err != nil {
			logger.Warn("event date unparseable, keeping record without one",
				"transaction_id", event.TransactionID,
				"date", event.Date,
			)
		}

		revision := store.Append(event.Dataset, normalizer.Record{
			Group: event.Group,
			Item:  event.Item,
			Date:  date,
		})
		if m != nil {
			m.DatasetSize.WithLabelValues(event.Dataset).Inc()
		}
		logger.Debug("transaction appended",
			"dataset", event.Dataset,
			"revision", revision,
		)
		return nil
	}
}
