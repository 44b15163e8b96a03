package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/voltfleet/webhook-dispatcher/internal/dispatch"
	"github.com/voltfleet/webhook-dispatcher/internal/domain"
)

type fakeRegistry struct {
	subs    []domain.Subscriber
	listErr error
}

func (f *fakeRegistry) ListEligible(_ context.Context, eventType string, _ *string) ([]domain.Subscriber, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Subscriber
	for _, sub := range f.subs {
		if sub.Status == domain.StatusActive && sub.SubscribedTo(eventType) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeRegistry) GetSubscriber(_ context.Context, id string) (*domain.Subscriber, error) {
	for _, sub := range f.subs {
		if sub.ID == id {
			return &sub, nil
		}
	}
	return nil, nil
}

func (f *fakeRegistry) SetStatus(context.Context, string, string) error { return nil }

type nopLog struct{}

func (nopLog) AppendAttempt(context.Context, domain.DeliveryAttempt) error { return nil }

func newTestEventHandler(registry dispatch.Registry) *EventHandler {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	deliverer := dispatch.NewDeliverer(nopLog{}, nil, nil, 5*time.Second, logger)
	scheduler := dispatch.NewScheduler(deliverer, registry, logger)
	return NewEventHandler(dispatch.NewFanout(registry, deliverer, scheduler, logger))
}

func TestTriggerEvent(t *testing.T) {
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer endpoint.Close()

	registry := &fakeRegistry{subs: []domain.Subscriber{{
		ID:          "sub-1",
		EndpointURL: endpoint.URL,
		Secret:      "whsec_test",
		EventTypes:  []string{"session.completed"},
		MaxAttempts: 3,
		Status:      domain.StatusActive,
	}}}
	handler := newTestEventHandler(registry)

	body := `{"event_type":"session.completed","payload":{"session_id":"s-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Trigger(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", rec.Code, rec.Body.String())
	}

	var sum dispatch.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("response is not a summary: %v", err)
	}
	if sum.Dispatched != 1 || sum.FirstAttemptSucceeded != 1 {
		t.Errorf("summary = %+v, want 1 dispatched, 1 succeeded", sum)
	}
}

func TestTriggerEventValidation(t *testing.T) {
	handler := newTestEventHandler(&fakeRegistry{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing event type", `{"payload":{}}`},
		{"missing payload", `{"event_type":"session.completed"}`},
		{"malformed payload", `{"event_type":"session.completed","payload":{]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.Trigger(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTriggerEventRegistryFailure(t *testing.T) {
	handler := newTestEventHandler(&fakeRegistry{listErr: errors.New("db down")})

	body := `{"event_type":"session.completed","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Trigger(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestTriggerEventNoSubscribers(t *testing.T) {
	handler := newTestEventHandler(&fakeRegistry{})

	body := `{"event_type":"session.completed","payload":{"session_id":"s-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Trigger(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var sum dispatch.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("response is not a summary: %v", err)
	}
	if sum.Dispatched != 0 {
		t.Errorf("dispatched = %d, want 0", sum.Dispatched)
	}
}
