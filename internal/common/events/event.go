package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation sets the correlation ID of the request that produced the event
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// Publisher publishes events to a message broker
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Payment event types
const (
	EventPaymentSettled  = "payment.settled"
	EventPaymentDeclined = "payment.declined"
	EventPaymentFailed   = "payment.failed"
	EventPaymentCaptured = "payment.captured"
	EventPaymentRefunded = "payment.refunded"
	EventCardSaved       = "payment.card_saved"
)

const AggregateOrder = "order"

// PaymentSettledData is the data for payment.settled events
type PaymentSettledData struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Captured          bool   `json:"captured"`
}

// PaymentRejectedData is the data for payment.declined and payment.failed events
type PaymentRejectedData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentCapturedData is the data for payment.captured events
type PaymentCapturedData struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
}

// PaymentRefundedData is the data for payment.refunded events
type PaymentRefundedData struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

// CardSavedData is the data for payment.card_saved events
type CardSavedData struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Brand      string `json:"brand"`
	Last4      string `json:"last4"`
}
