package model

import "time"

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryInFlight  DeliveryStatus = "in_flight"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryDead      DeliveryStatus = "dead"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliveryInFlight, DeliveryDelivered, DeliveryFailed, DeliveryDead:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed on this row.
// A failed row is terminal for the row itself; the retry (if any) is a new row.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed || s == DeliveryDead
}

// DeliveryAttempt is one row of the delivery ledger: a single HTTP try for a
// (event, subscription) pair. Rows are append-only; the only in-place mutation
// is pending -> in_flight -> terminal on the same attempt.
type DeliveryAttempt struct {
	ID             string         `db:"id"`
	EventID        string         `db:"event_id"`
	SubscriptionID string         `db:"subscription_id"`
	Attempt        int            `db:"attempt"`
	Status         DeliveryStatus `db:"status"`
	HTTPStatus     *int           `db:"http_status"`
	Error          string         `db:"error"`
	LatencyMs      int64          `db:"latency_ms"`
	ScheduledAt    time.Time      `db:"scheduled_at"`
	StartedAt      *time.Time     `db:"started_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}
