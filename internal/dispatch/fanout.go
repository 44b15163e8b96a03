package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voltfleet/webhook-dispatcher/internal/domain"
	"github.com/voltfleet/webhook-dispatcher/internal/metrics"
)

// TestEventType is the synthetic event type used by manual test deliveries.
const TestEventType = "webhook.test"

// ErrSubscriberNotFound is returned by SendTest for an unknown subscriber ID.
var ErrSubscriberNotFound = errors.New("subscriber not found")

// Registry is the subscriber registry collaborator. The dispatcher reads it
// for eligibility resolution and writes it only for the terminal disable
// transition.
type Registry interface {
	ListEligible(ctx context.Context, eventType string, tenantID *string) ([]domain.Subscriber, error)
	GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error)
	SetStatus(ctx context.Context, id, status string) error
}

// Summary reports the immediate result of a fan-out. Counts cover first
// attempts only; retries continue in the background after Trigger returns and
// are observable through the delivery log, not here.
type Summary struct {
	Dispatched            int `json:"dispatched"`
	FirstAttemptSucceeded int `json:"first_attempt_succeeded"`
	FirstAttemptFailed    int `json:"first_attempt_failed"`
}

// Fanout resolves eligible subscribers for an event and runs one independent
// delivery chain per subscriber.
type Fanout struct {
	registry  Registry
	deliverer *Deliverer
	scheduler *Scheduler
	logger    *slog.Logger
}

func NewFanout(registry Registry, deliverer *Deliverer, scheduler *Scheduler, logger *slog.Logger) *Fanout {
	return &Fanout{
		registry:  registry,
		deliverer: deliverer,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Trigger dispatches first attempts to all eligible subscribers concurrently
// and waits for them to settle. A subscriber is eligible when it is active,
// subscribed to the event type, and — for tenant-scoped events — registered
// under the same tenant.
//
// The only error surfaced to the caller is a failure to resolve subscribers;
// individual delivery failures are absorbed into the log and the retry
// pipeline.
func (f *Fanout) Trigger(ctx context.Context, eventType string, payload json.RawMessage, tenantID *string) (Summary, error) {
	subs, err := f.registry.ListEligible(ctx, eventType, tenantID)
	if err != nil {
		return Summary{}, fmt.Errorf("resolving subscribers: %w", err)
	}

	metrics.EventsTriggeredTotal.Inc()

	event := domain.Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Payload:  payload,
		TenantID: tenantID,
	}

	if len(subs) == 0 {
		f.logger.Info("no eligible subscribers", "event_id", event.ID, "event_type", eventType)
		return Summary{}, nil
	}

	var succeeded, failed atomic.Int32
	var wg sync.WaitGroup

	for _, sub := range subs {
		wg.Add(1)
		go func(sub domain.Subscriber) {
			defer wg.Done()

			out := f.deliverer.Attempt(ctx, sub, event, 1)
			if out.Success {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			f.scheduler.OnOutcome(ctx, sub, event, 1, out)
		}(sub)
	}

	wg.Wait()

	summary := Summary{
		Dispatched:            len(subs),
		FirstAttemptSucceeded: int(succeeded.Load()),
		FirstAttemptFailed:    int(failed.Load()),
	}

	f.logger.Info("fan-out complete",
		"event_id", event.ID,
		"event_type", eventType,
		"dispatched", summary.Dispatched,
		"first_attempt_succeeded", summary.FirstAttemptSucceeded,
		"first_attempt_failed", summary.FirstAttemptFailed,
	)

	return summary, nil
}

// SendTest delivers a single synthetic event to one named subscriber through
// the normal attempt/logging path. It bypasses eligibility filtering (status
// and subscriptions are ignored) and never retries.
func (f *Fanout) SendTest(ctx context.Context, subscriberID string) (Outcome, error) {
	sub, err := f.registry.GetSubscriber(ctx, subscriberID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading subscriber: %w", err)
	}
	if sub == nil {
		return Outcome{}, ErrSubscriberNotFound
	}

	payload, err := json.Marshal(map[string]any{
		"ping":          true,
		"subscriber_id": sub.ID,
		"requested_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("encoding test payload: %w", err)
	}

	event := domain.Event{
		ID:       uuid.NewString(),
		Type:     TestEventType,
		Payload:  payload,
		TenantID: sub.TenantID,
	}

	return f.deliverer.Attempt(ctx, *sub, event, 1), nil
}
