package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voltfleet/webhook-dispatcher/internal/domain"
	"github.com/voltfleet/webhook-dispatcher/internal/metrics"
	ws "github.com/voltfleet/webhook-dispatcher/internal/websocket"
)

// DefaultTimeout bounds a single delivery attempt end to end. Exceeding it is
// indistinguishable from a network failure (status code 0).
const DefaultTimeout = 30 * time.Second

const (
	signatureHeader = "X-Webhook-Signature"
	eventTypeHeader = "X-Webhook-Event"
)

// AttemptLog is the append-only delivery log. Records are never mutated or
// deleted by the dispatcher.
type AttemptLog interface {
	AppendAttempt(ctx context.Context, rec domain.DeliveryAttempt) error
}

// Outcome is the settled result of one delivery attempt. Attempts never fail
// with an error: transport problems, non-2xx responses, and internal mishaps
// all collapse into a failed outcome so that one broken endpoint can never
// abort its siblings in a fan-out.
type Outcome struct {
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code"`
	Response   string        `json:"response,omitempty"`
	Duration   time.Duration `json:"-"`
}

// Deliverer performs single HTTP delivery attempts to subscriber endpoints.
type Deliverer struct {
	httpClient *http.Client
	log        AttemptLog
	limiter    *RateLimiter
	hub        *ws.Hub
	logger     *slog.Logger
}

// NewDeliverer creates a deliverer with a configured HTTP client. The limiter
// and hub are optional.
func NewDeliverer(log AttemptLog, limiter *RateLimiter, hub *ws.Hub, timeout time.Duration, logger *slog.Logger) *Deliverer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Deliverer{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		limiter:    limiter,
		hub:        hub,
		logger:     logger,
	}
}

// Attempt delivers the event to the subscriber once and settles the result.
// Exactly one delivery log record is written per call, regardless of outcome.
func (d *Deliverer) Attempt(ctx context.Context, sub domain.Subscriber, event domain.Event, attempt int) Outcome {
	start := time.Now()

	body, err := EncodeEnvelope(event, start)
	if err != nil {
		return d.settle(ctx, sub, event, attempt, start, event.Payload,
			Outcome{Response: fmt.Sprintf("encoding envelope: %v", err)})
	}

	if d.limiter != nil && !d.limiter.Allow(ctx, sub.ID, sub.RateLimitPerSecond) {
		return d.settle(ctx, sub, event, attempt, start, body,
			Outcome{Response: "rate limit exceeded"})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return d.settle(ctx, sub, event, attempt, start, body,
			Outcome{Response: fmt.Sprintf("building request: %v", err)})
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, Sign(body, sub.Secret))
	req.Header.Set(eventTypeHeader, event.Type)

	// Custom headers go last: on a name collision with a reserved header the
	// subscriber's value wins. Some partner integrations depend on this.
	for name, value := range sub.CustomHeaders {
		req.Header.Set(name, value)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return d.settle(ctx, sub, event, attempt, start, body,
			Outcome{Response: fmt.Sprintf("request failed: %v", err)})
	}
	defer resp.Body.Close()

	// Keep at most 1KB of the response for the log.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	return d.settle(ctx, sub, event, attempt, start, body, Outcome{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Response:   string(snippet),
	})
}

// settle records the attempt, publishes it to observers, and returns the
// outcome by value.
func (d *Deliverer) settle(ctx context.Context, sub domain.Subscriber, event domain.Event, attempt int, start time.Time, body []byte, out Outcome) Outcome {
	out.Duration = time.Since(start)

	rec := domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		SubscriberID:  sub.ID,
		EventID:       event.ID,
		EventType:     event.Type,
		Payload:       body, // the envelope as transmitted, so the log is signature-verifiable
		AttemptNumber: attempt,
		StatusCode:    out.StatusCode,
		Response:      out.Response,
		DurationMs:    int(out.Duration.Milliseconds()),
		Success:       out.Success,
		CreatedAt:     time.Now().UTC(),
	}
	if err := d.log.AppendAttempt(ctx, rec); err != nil {
		d.logger.Error("failed to record delivery attempt",
			"error", err,
			"event_id", event.ID,
			"subscriber_id", sub.ID,
		)
	}

	status := "failed"
	if out.Success {
		status = "success"
	}
	metrics.DeliveryAttemptsTotal.WithLabelValues(status).Inc()
	metrics.DeliveryDuration.Observe(out.Duration.Seconds())

	if d.hub != nil {
		d.hub.Broadcast(ws.DeliveryEvent{
			Type:         "delivery_" + status,
			EventID:      event.ID,
			SubscriberID: sub.ID,
			EndpointURL:  sub.EndpointURL,
			EventType:    event.Type,
			Attempt:      attempt,
			StatusCode:   out.StatusCode,
			DurationMs:   out.Duration.Milliseconds(),
			Timestamp:    rec.CreatedAt,
		})
	}

	if out.Success {
		d.logger.Info("delivery successful",
			"event_id", event.ID,
			"subscriber_id", sub.ID,
			"attempt", attempt,
			"status_code", out.StatusCode,
			"duration_ms", out.Duration.Milliseconds(),
		)
	} else {
		d.logger.Warn("delivery failed",
			"event_id", event.ID,
			"subscriber_id", sub.ID,
			"attempt", attempt,
			"status_code", out.StatusCode,
			"response", out.Response,
			"duration_ms", out.Duration.Milliseconds(),
		)
	}

	return out
}
