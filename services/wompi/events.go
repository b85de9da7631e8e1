package wompi

import "time"

const (
	EventTransactionCreated  = "transaction.created"
	EventTransactionUpdated  = "transaction.updated"
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionCancel  = "subscription.cancelled"

	TransactionApproved = "APPROVED"
	TransactionPending  = "PENDING"
)

// Event is the envelope Wompi posts to the events URL.
type Event struct {
	Event string `json:"event"`
	Data  struct {
		Transaction  *Transaction  `json:"transaction,omitempty"`
		Subscription *Subscription `json:"subscription,omitempty"`
	} `json:"data"`
	SentAt    time.Time `json:"sent_at"`
	Timestamp int64     `json:"timestamp"`
}

// Transaction is the transaction object of events and of GET /transactions/:id.
type Transaction struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	Reference         string    `json:"reference"`
	AmountInCents     int64     `json:"amount_in_cents"`
	Currency          string    `json:"currency"`
	PaymentMethodType string    `json:"payment_method_type"`
	CreatedAt         time.Time `json:"created_at"`
	FinalizedAt       time.Time `json:"finalized_at"`
}

// Subscription is the subscription object of subscription events.
type Subscription struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	Reference       string     `json:"reference"`
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
}

// OccurredAt is the event time used to order deliveries. Falls back to the
// send time and then to now.
func (e *Event) OccurredAt() time.Time {
	if e.Timestamp > 0 {
		return time.Unix(e.Timestamp, 0).UTC()
	}
	if !e.SentAt.IsZero() {
		return e.SentAt.UTC()
	}
	return time.Now().UTC()
}

// Reference returns the merchant reference carried by the event, if any.
func (e *Event) Reference() string {
	if e.Data.Transaction != nil {
		return e.Data.Transaction.Reference
	}
	if e.Data.Subscription != nil {
		return e.Data.Subscription.Reference
	}
	return ""
}
