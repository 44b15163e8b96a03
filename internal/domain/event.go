package domain

import "encoding/json"

// Event is an ephemeral domain event handed to the dispatcher by the
// platform's services (sessions, bookings, invoicing). It is never persisted
// as a row of its own; the delivery log keeps a payload snapshot per attempt.
type Event struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	TenantID *string         `json:"tenant_id,omitempty"`
}
