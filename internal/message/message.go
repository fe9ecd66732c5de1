package message

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Well-known header keys.
const (
	HeaderCorrelationID  = "correlationId"
	HeaderSequenceNumber = "sequenceNumber"
	HeaderSequenceSize   = "sequenceSize"
)

// Headers holds message metadata.
type Headers map[string]any

// Message is the unit exchanged between channels, routers and transformers.
type Message struct {
	ID        uuid.UUID
	Timestamp time.Time
	Headers   Headers
	Payload   any
}

// New creates a message with a random ID and the current time.
// The headers map is copied.
func New(payload any, headers Headers) *Message {
	return &Message{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Headers:   copyHeaders(headers),
		Payload:   payload,
	}
}

// WithPayload returns a new message carrying payload and a copy of m's headers.
func (m *Message) WithPayload(payload any) *Message {
	return New(payload, m.Headers)
}

// WithHeaders returns a new message with m's payload and headers merged with extra.
// Keys in extra win.
func (m *Message) WithHeaders(extra Headers) *Message {
	merged := copyHeaders(m.Headers)
	maps.Copy(merged, extra)
	return &Message{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Headers:   merged,
		Payload:   m.Payload,
	}
}

// Header returns the header value for key.
func (m *Message) Header(key string) (any, bool) {
	if m.Headers == nil {
		return nil, false
	}
	v, ok := m.Headers[key]
	return v, ok
}

func copyHeaders(h Headers) Headers {
	out := make(Headers, len(h))
	maps.Copy(out, h)
	return out
}
