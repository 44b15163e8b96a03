package domain

import (
	"encoding/json"
	"time"
)

// DeliveryAttempt is one row of the append-only delivery log: one record per
// HTTP attempt, retries included. StatusCode 0 means no response was received
// (network error, timeout, or the attempt was blocked before sending).
type DeliveryAttempt struct {
	ID            string          `json:"id"`
	SubscriberID  string          `json:"subscriber_id"`
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	AttemptNumber int             `json:"attempt_number"`
	StatusCode    int             `json:"status_code"`
	Response      string          `json:"response,omitempty"`
	DurationMs    int             `json:"duration_ms"`
	Success       bool            `json:"success"`
	CreatedAt     time.Time       `json:"created_at"`
}
