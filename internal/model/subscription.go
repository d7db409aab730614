package model

import "time"

const (
	DefaultDeliveryTimeout = 30 * time.Second
	DefaultMaxAttempts     = 5
)

// Subscription is a tenant's registered webhook endpoint plus the event types
// it listens for. Deactivation is a soft flag so past deliveries stay attributable.
type Subscription struct {
	ID            string     `db:"id"`
	TenantID      string     `db:"tenant_id"`
	TargetURL     string     `db:"target_url"`
	Secret        string     `db:"secret"`
	EventTypes    StringSet  `db:"event_types"`
	Active        bool       `db:"active"`
	CustomHeaders StringMap  `db:"custom_headers"`
	TimeoutMs     int        `db:"timeout_ms"`
	MaxAttempts   int        `db:"max_attempts"`
	DegradedAt    *time.Time `db:"degraded_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Timeout returns the per-delivery HTTP timeout, falling back to the default.
func (s Subscription) Timeout() time.Duration {
	if s.TimeoutMs > 0 {
		return time.Duration(s.TimeoutMs) * time.Millisecond
	}
	return DefaultDeliveryTimeout
}

// AttemptCeiling returns the max delivery attempts per event for this subscription.
func (s Subscription) AttemptCeiling() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}
