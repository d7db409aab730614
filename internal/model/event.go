package model

import (
	"encoding/json"
	"time"
)

// Event is a domain event published by the rest of the platform.
// Immutable once persisted; ID is the idempotency key subscribers use to dedupe.
type Event struct {
	ID         string          `db:"id" json:"event_id"`
	TenantID   string          `db:"tenant_id" json:"tenant_id"`
	Type       string          `db:"type" json:"type"`
	OccurredAt time.Time       `db:"occurred_at" json:"occurred_at"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
}
