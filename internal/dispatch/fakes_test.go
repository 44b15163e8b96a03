package dispatch

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/voltfleet/webhook-dispatcher/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memRegistry is an in-memory Registry for exercising the dispatch core
// without Postgres.
type memRegistry struct {
	mu          sync.Mutex
	subs        map[string]domain.Subscriber
	listErr     error
	statusCalls []string
}

func newMemRegistry(subs ...domain.Subscriber) *memRegistry {
	r := &memRegistry{subs: make(map[string]domain.Subscriber)}
	for _, sub := range subs {
		r.subs[sub.ID] = sub
	}
	return r
}

func (r *memRegistry) ListEligible(_ context.Context, eventType string, tenantID *string) ([]domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listErr != nil {
		return nil, r.listErr
	}

	var eligible []domain.Subscriber
	for _, sub := range r.subs {
		if sub.Status != domain.StatusActive || !sub.SubscribedTo(eventType) {
			continue
		}
		if tenantID != nil && (sub.TenantID == nil || *sub.TenantID != *tenantID) {
			continue
		}
		eligible = append(eligible, sub)
	}
	return eligible, nil
}

func (r *memRegistry) GetSubscriber(_ context.Context, id string) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r *memRegistry) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statusCalls = append(r.statusCalls, id)
	if sub, ok := r.subs[id]; ok {
		sub.Status = status
		r.subs[id] = sub
	}
	return nil
}

func (r *memRegistry) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id].Status
}

func (r *memRegistry) setStatusCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statusCalls...)
}

// memLog is an in-memory AttemptLog.
type memLog struct {
	mu   sync.Mutex
	recs []domain.DeliveryAttempt
}

func (l *memLog) AppendAttempt(_ context.Context, rec domain.DeliveryAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
	return nil
}

func (l *memLog) records() []domain.DeliveryAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.DeliveryAttempt(nil), l.recs...)
}

func (l *memLog) forSubscriber(id string) []domain.DeliveryAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, rec := range l.recs {
		if rec.SubscriberID == id {
			out = append(out, rec)
		}
	}
	return out
}

// delayRecorder substitutes the scheduler's timer: it records each requested
// delay and fires immediately.
type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (d *delayRecorder) after(dur time.Duration) <-chan time.Time {
	d.mu.Lock()
	d.delays = append(d.delays, dur)
	d.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (d *delayRecorder) recorded() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.delays...)
}
