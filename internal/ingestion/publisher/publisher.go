// Package publisher persists transactions to PostgreSQL and publishes
// transaction events to Kafka for the miner's dataset stores. Single
// transactions are idempotent per row; batch and CSV uploads claim one
// idempotency key for the whole upload.
package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/smartgrocer/basket-analytics-platform/internal/ingestion"
	"github.com/smartgrocer/basket-analytics-platform/internal/normalizer"
	apperrors "github.com/smartgrocer/basket-analytics-platform/pkg/errors"
	"github.com/smartgrocer/basket-analytics-platform/pkg/kafka"
	"github.com/smartgrocer/basket-analytics-platform/pkg/metrics"
	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
	"github.com/smartgrocer/basket-analytics-platform/pkg/resilience"
)

// Publisher coordinates transaction persistence and Kafka event production.
type Publisher struct {
	db       *postgres.Client
	producer *kafka.Producer
	topic    string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Publisher. The topic name is only used for metric labels;
// the producer is already bound to it.
func New(db *postgres.Client, producer *kafka.Producer, topic string, m *metrics.Metrics) *Publisher {
	return &Publisher{
		db:       db,
		producer: producer,
		topic:    topic,
		metrics:  m,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest persists a single transaction and publishes its event. A previously
// seen idempotency key returns the stored transaction with status DUPLICATE
// instead of re-inserting.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.TransactionRequest) (*ingestion.TransactionResponse, error) {
	date, err := normalizer.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	records := normalizer.Normalize([]normalizer.Record{{
		Group: req.Group,
		Item:  req.Item,
		Date:  date,
	}})
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: group and item must be non-empty after normalization", apperrors.ErrInvalidInput)
	}
	rec := records[0]

	if req.IdempotencyKey != "" {
		existing, err := p.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate transaction detected",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.TransactionID,
			)
			return existing, nil
		}
	}

	txID := uuid.NewString()
	err = p.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := ensureDataset(ctx, tx, req.Dataset); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx,
			`INSERT INTO transactions (id, dataset, group_id, item, tx_date, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`, txID, req.Dataset, rec.Group, rec.Item, nullableDate(rec.Date), nullableString(req.IdempotencyKey)).Scan(&txID)
		if err == sql.ErrNoRows {
			return apperrors.New(apperrors.ErrIdempotencyConflict, 409, "idempotency key already in use")
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}

	p.publish(ctx, []kafka.Event{{
		Key: req.Dataset,
		Value: ingestion.TransactionEvent{
			TransactionID: txID,
			Dataset:       req.Dataset,
			Group:         rec.Group,
			Item:          rec.Item,
			Date:          eventDate(rec.Date),
			IngestedAt:    time.Now().UTC(),
		},
	}})
	p.metrics.TransactionsIngestedTotal.Inc()

	return &ingestion.TransactionResponse{
		TransactionID: txID,
		Dataset:       req.Dataset,
		Status:        "ACCEPTED",
	}, nil
}

// IngestBatch persists every valid transaction of a batch in one database
// transaction, then publishes their events in one Kafka write.
func (p *Publisher) IngestBatch(ctx context.Context, req *ingestion.BatchRequest) (*ingestion.BatchResponse, error) {
	raw := make([]normalizer.Record, 0, len(req.Transactions))
	for _, t := range req.Transactions {
		date, err := normalizer.ParseDate(t.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		raw = append(raw, normalizer.Record{Group: t.Group, Item: t.Item, Date: date})
	}
	records := normalizer.Normalize(raw)

	ids, err := p.store(ctx, req.Dataset, req.IdempotencyKey, records)
	if err != nil {
		return nil, err
	}
	p.publishRecords(ctx, req.Dataset, ids, records)
	p.metrics.TransactionsIngestedTotal.Add(float64(len(records)))

	return &ingestion.BatchResponse{
		Dataset:  req.Dataset,
		Accepted: len(records),
		Dropped:  len(req.Transactions) - len(records),
		Status:   "ACCEPTED",
	}, nil
}

// IngestCSV reads a Member_number/Date/itemDescription export, normalizes it,
// and stores and publishes the surviving records.
func (p *Publisher) IngestCSV(ctx context.Context, dataset, idempotencyKey string, r io.Reader) (*ingestion.BatchResponse, error) {
	raw, report, err := normalizer.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	records := normalizer.Normalize(raw)

	ids, err := p.store(ctx, dataset, idempotencyKey, records)
	if err != nil {
		return nil, err
	}
	p.publishRecords(ctx, dataset, ids, records)
	p.metrics.TransactionsIngestedTotal.Add(float64(len(records)))

	return &ingestion.BatchResponse{
		Dataset:  dataset,
		Accepted: len(records),
		Dropped:  report.Rows - len(records),
		BadDates: report.BadDates,
		Status:   "ACCEPTED",
	}, nil
}

// store claims the upload's idempotency key, ensures the dataset row, and
// bulk-inserts the records via COPY, all in one transaction. It returns the
// generated row IDs so published events carry the same IDs.
func (p *Publisher) store(ctx context.Context, dataset, idempotencyKey string, records []normalizer.Record) ([]string, error) {
	ids := make([]string, len(records))
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		if idempotencyKey != "" {
			var claimed string
			err := tx.QueryRowContext(ctx,
				`INSERT INTO ingest_keys (key, dataset) VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING
			RETURNING key`, idempotencyKey, dataset).Scan(&claimed)
			if err == sql.ErrNoRows {
				return apperrors.New(apperrors.ErrIdempotencyConflict, 409, "idempotency key already in use")
			}
			if err != nil {
				return err
			}
		}
		if err := ensureDataset(ctx, tx, dataset); err != nil {
			return err
		}
		return copyRecords(ctx, tx, dataset, ids, records)
	})
	if err != nil {
		return nil, fmt.Errorf("storing records: %w", err)
	}
	return ids, nil
}

// copyRecords streams records into the transactions table with COPY, which
// keeps large CSV uploads to a single round trip.
func copyRecords(ctx context.Context, tx *sql.Tx, dataset string, ids []string, records []normalizer.Record) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("transactions", "id", "dataset", "group_id", "item", "tx_date"))
	if err != nil {
		return fmt.Errorf("preparing copy: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, ids[i], dataset, rec.Group, rec.Item, nullableDate(rec.Date)); err != nil {
			return fmt.Errorf("buffering record: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing copy: %w", err)
	}
	return nil
}

func (p *Publisher) publishRecords(ctx context.Context, dataset string, ids []string, records []normalizer.Record) {
	if len(records) == 0 {
		return
	}
	now := time.Now().UTC()
	events := make([]kafka.Event, 0, len(records))
	for i, rec := range records {
		events = append(events, kafka.Event{
			Key: dataset,
			Value: ingestion.TransactionEvent{
				TransactionID: ids[i],
				Dataset:       dataset,
				Group:         rec.Group,
				Item:          rec.Item,
				Date:          eventDate(rec.Date),
				IngestedAt:    now,
			},
		})
	}
	p.publish(ctx, events)
}

// publish writes events with retries. Failures are logged, not returned: the
// rows are already durable in PostgreSQL, and the error status on the
// publish counter is what surfaces the gap to operators.
func (p *Publisher) publish(ctx context.Context, events []kafka.Event) {
	err := resilience.Retry(ctx, "kafka-publish", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
	}, func() error {
		return p.producer.PublishBatch(ctx, events)
	})
	if err != nil {
		p.metrics.KafkaPublishesTotal.WithLabelValues(p.topic, "error").Inc()
		p.logger.Error("publishing transaction events failed, datasets will lag until republished",
			"events", len(events),
			"error", err,
		)
		return
	}
	p.metrics.KafkaPublishesTotal.WithLabelValues(p.topic, "ok").Inc()
}

func (p *Publisher) findByIdempotencyKey(ctx context.Context, key string) (*ingestion.TransactionResponse, error) {
	var resp ingestion.TransactionResponse
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT id, dataset FROM transactions WHERE idempotency_key=$1`, key).Scan(&resp.TransactionID, &resp.Dataset)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	resp.Status = "DUPLICATE"
	return &resp, nil
}

func ensureDataset(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return fmt.Errorf("ensuring dataset %s: %w", name, err)
	}
	return nil
}

func eventDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(normalizer.DateLayout)
}

func nullableDate(d time.Time) sql.NullTime {
	if d.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: d, Valid: true}
}

// nullableString converts a Go string to a sql.NullString, treating the
// empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
