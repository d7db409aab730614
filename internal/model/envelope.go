package model

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON body POSTed to subscriber endpoints. The HMAC signature
// covers the exact marshaled bytes of this struct.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"` // RFC3339
	Data       json.RawMessage `json:"data"`
}

func NewEnvelope(ev Event) Envelope {
	return Envelope{
		EventID:    ev.ID,
		EventType:  ev.Type,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339),
		Data:       ev.Payload,
	}
}
