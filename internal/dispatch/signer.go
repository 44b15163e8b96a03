package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/voltfleet/webhook-dispatcher/internal/domain"
)

// Envelope is the wire body of every outbound delivery. Receivers verify the
// signature by recomputing the HMAC over these exact bytes, so the envelope
// is serialized once and transmitted as-is.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EncodeEnvelope serializes the delivery body for an event at the given
// attempt time. Every attempt gets a fresh timestamp and therefore a fresh
// signature.
func EncodeEnvelope(event domain.Event, now time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		Event:     event.Type,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      event.Payload,
	})
}

// Sign computes the hex-encoded HMAC-SHA256 of body under the subscriber's
// shared secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
