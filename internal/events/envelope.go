package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope carries a domain event with its transport metadata.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	BusinessID      string          `json:"business_id"`
	TimestampMicros int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

// EnvelopeOption customizes the generated envelope (useful in tests).
type EnvelopeOption func(*Envelope)

// WithEventID overrides the automatically generated event id.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithTimestamp overrides the timestamp stored in microseconds.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if ts.IsZero() {
			return
		}
		e.TimestampMicros = ts.UTC().UnixMicro()
	}
}

var (
	errMissingBusiness = errors.New("events: business id is required")
	errMissingType     = errors.New("events: event type is required")
	nowFunc            = time.Now
)

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(businessID, eventType string, payload any, opts ...EnvelopeOption) (Envelope, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return Envelope{}, errMissingBusiness
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return Envelope{}, errMissingType
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal payload: %w", err)
	}
	env := Envelope{
		EventID:         uuid.New(),
		EventType:       eventType,
		BusinessID:      businessID,
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		Payload:         data,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// OccurredAt converts the microsecond timestamp back to a time.
func (e Envelope) OccurredAt() time.Time {
	return time.UnixMicro(e.TimestampMicros).UTC()
}
