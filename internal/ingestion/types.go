// Package ingestion defines the request/response types and Kafka event
// schemas used by the transaction ingestion pipeline.
package ingestion

import "time"

// TransactionRequest is the JSON body accepted by the single-transaction
// endpoint. Date is optional and uses the day-month-year layout of the
// upstream exports.
type TransactionRequest struct {
	Dataset        string `json:"dataset" validate:"required,dataset"`
	Group          string `json:"group" validate:"required,max=128"`
	Item           string `json:"item" validate:"required,max=256"`
	Date           string `json:"date,omitempty" validate:"omitempty,datetime=02-01-2006"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

// TransactionResponse is returned after a transaction is accepted.
type TransactionResponse struct {
	TransactionID string `json:"transaction_id"`
	Dataset       string `json:"dataset"`
	Status        string `json:"status"`
}

// BatchTransaction is one element of a batch payload.
type BatchTransaction struct {
	Group string `json:"group" validate:"required,max=128"`
	Item  string `json:"item" validate:"required,max=256"`
	Date  string `json:"date,omitempty" validate:"omitempty,datetime=02-01-2006"`
}

// BatchRequest carries multiple transactions for one dataset in a single
// call. The idempotency key covers the whole batch.
type BatchRequest struct {
	Dataset        string             `json:"dataset" validate:"required,dataset"`
	Transactions   []BatchTransaction `json:"transactions" validate:"required,min=1,max=10000,dive"`
	IdempotencyKey string             `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

// BatchResponse reports how a batch or CSV upload split between accepted and
// dropped records.
type BatchResponse struct {
	Dataset  string `json:"dataset"`
	Accepted int    `json:"accepted"`
	Dropped  int    `json:"dropped"`
	BadDates int    `json:"bad_dates,omitempty"`
	Status   string `json:"status"`
}

// TransactionEvent is the Kafka message payload produced after a transaction
// is persisted. Dataset doubles as the partition key so one dataset's events
// stay ordered.
type TransactionEvent struct {
	TransactionID string    `json:"transaction_id"`
	Dataset       string    `json:"dataset"`
	Group         string    `json:"group"`
	Item          string    `json:"item"`
	Date          string    `json:"date,omitempty"`
	IngestedAt    time.Time `json:"ingested_at"`
}
