package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voltfleet/webhook-dispatcher/internal/domain"
)

func newTestFanout(registry Registry, log AttemptLog) (*Fanout, *Scheduler) {
	d := NewDeliverer(log, nil, nil, 5*time.Second, testLogger())
	s := NewScheduler(d, registry, testLogger())
	s.after = (&delayRecorder{}).after
	return NewFanout(registry, d, s, testLogger()), s
}

func TestTriggerCountsFirstAttempts(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failServer.Close()

	healthy := testSubscriber(okServer.URL)
	broken := testSubscriber(failServer.URL)
	broken.ID = "sub-2"
	broken.MaxAttempts = 2

	registry := newMemRegistry(healthy, broken)
	log := &memLog{}
	fanout, scheduler := newTestFanout(registry, log)

	sum, err := fanout.Trigger(context.Background(), "session.completed", json.RawMessage(`{"session_id":"s-1"}`), nil)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}

	if sum.Dispatched != 2 {
		t.Errorf("dispatched = %d, want 2", sum.Dispatched)
	}
	if sum.FirstAttemptSucceeded != 1 {
		t.Errorf("first attempt succeeded = %d, want 1", sum.FirstAttemptSucceeded)
	}
	if sum.FirstAttemptFailed != 1 {
		t.Errorf("first attempt failed = %d, want 1", sum.FirstAttemptFailed)
	}

	// Background retries for the broken subscriber still run to completion.
	scheduler.Wait()
	if got := len(log.forSubscriber("sub-2")); got != 2 {
		t.Errorf("broken subscriber has %d attempts, want 2", got)
	}
	if got := len(log.forSubscriber("sub-1")); got != 1 {
		t.Errorf("healthy subscriber has %d attempts, want 1", got)
	}
}

func TestTriggerRetriesRunAfterReturn(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sub := testSubscriber(server.URL)
	sub.MaxAttempts = 3
	registry := newMemRegistry(sub)

	log := &memLog{}
	d := NewDeliverer(log, nil, nil, 5*time.Second, testLogger())
	s := NewScheduler(d, registry, testLogger())

	// Gate the retry timer so nothing past attempt 1 can run until released.
	gate := make(chan time.Time)
	s.after = func(time.Duration) <-chan time.Time { return gate }

	fanout := NewFanout(registry, d, s, testLogger())
	sum, err := fanout.Trigger(context.Background(), "session.completed", json.RawMessage(`{}`), nil)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}

	if got := hits.Load(); got != 1 {
		t.Fatalf("endpoint hit %d times before the retry gate opened, want 1", got)
	}
	if sum.FirstAttemptFailed != 1 {
		t.Errorf("first attempt failed = %d, want 1", sum.FirstAttemptFailed)
	}

	close(gate)
	s.Wait()

	if got := hits.Load(); got != 3 {
		t.Errorf("endpoint hit %d times after the chain settled, want 3", got)
	}
}

func TestTriggerEligibilityFiltering(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tenant := "org-volt"
	otherTenant := "org-amp"

	matching := testSubscriber(server.URL)
	matching.TenantID = &tenant

	disabled := testSubscriber(server.URL)
	disabled.ID = "sub-disabled"
	disabled.TenantID = &tenant
	disabled.Status = domain.StatusDisabled

	wrongType := testSubscriber(server.URL)
	wrongType.ID = "sub-wrong-type"
	wrongType.TenantID = &tenant
	wrongType.EventTypes = []string{"charger.connected"}

	wrongTenant := testSubscriber(server.URL)
	wrongTenant.ID = "sub-wrong-tenant"
	wrongTenant.TenantID = &otherTenant

	global := testSubscriber(server.URL)
	global.ID = "sub-global"
	global.TenantID = nil

	registry := newMemRegistry(matching, disabled, wrongType, wrongTenant, global)
	log := &memLog{}
	fanout, scheduler := newTestFanout(registry, log)

	sum, err := fanout.Trigger(context.Background(), "session.completed", json.RawMessage(`{}`), &tenant)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	scheduler.Wait()

	// Tenant scoping is literal: a tenant-scoped event only matches
	// subscribers registered under that exact tenant.
	if sum.Dispatched != 1 {
		t.Errorf("dispatched = %d, want 1", sum.Dispatched)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("endpoint hit %d times, want 1", got)
	}
	if got := len(log.forSubscriber("sub-1")); got != 1 {
		t.Errorf("matching subscriber has %d attempts, want 1", got)
	}
}

func TestTriggerUnscopedEventSkipsTenantFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tenant := "org-volt"
	scoped := testSubscriber(server.URL)
	scoped.TenantID = &tenant
	global := testSubscriber(server.URL)
	global.ID = "sub-global"

	registry := newMemRegistry(scoped, global)
	fanout, scheduler := newTestFanout(registry, &memLog{})

	sum, err := fanout.Trigger(context.Background(), "session.completed", json.RawMessage(`{}`), nil)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	scheduler.Wait()

	if sum.Dispatched != 2 {
		t.Errorf("dispatched = %d, want 2 (unscoped events reach every active subscriber)", sum.Dispatched)
	}
}

func TestTriggerNoEligibleSubscribers(t *testing.T) {
	registry := newMemRegistry()
	fanout, _ := newTestFanout(registry, &memLog{})

	sum, err := fanout.Trigger(context.Background(), "session.completed", json.RawMessage(`{}`), nil)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if sum != (Summary{}) {
		t.Errorf("summary = %+v, want all zeroes", sum)
	}
}

func TestTriggerRegistryErrorPropagates(t *testing.T) {
	registry := newMemRegistry()
	registry.listErr = errors.New("connection reset")
	log := &memLog{}
	fanout, _ := newTestFanout(registry, log)

	_, err := fanout.Trigger(context.Background(), "session.completed", json.RawMessage(`{}`), nil)
	if err == nil {
		t.Fatal("expected an error when subscriber resolution fails")
	}
	if !strings.Contains(err.Error(), "resolving subscribers") {
		t.Errorf("error = %v, want it wrapped as a resolution failure", err)
	}
	if got := len(log.records()); got != 0 {
		t.Errorf("log has %d records, want 0 (nothing should be dispatched)", got)
	}
}

func TestSendTestBypassesEligibility(t *testing.T) {
	var gotEventType string
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotEventType = r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Disabled and not subscribed to webhook.test: a test delivery goes
	// through anyway.
	sub := testSubscriber(server.URL)
	sub.Status = domain.StatusDisabled
	sub.EventTypes = []string{"session.completed"}

	registry := newMemRegistry(sub)
	log := &memLog{}
	fanout, _ := newTestFanout(registry, log)

	out, err := fanout.SendTest(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("SendTest() error: %v", err)
	}
	if !out.Success {
		t.Errorf("outcome = %+v, want success", out)
	}
	if gotEventType != TestEventType {
		t.Errorf("event type = %s, want %s", gotEventType, TestEventType)
	}
	if got := len(log.records()); got != 1 {
		t.Errorf("log has %d records, want 1", got)
	}
}

func TestSendTestNeverRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sub := testSubscriber(server.URL)
	registry := newMemRegistry(sub)
	fanout, scheduler := newTestFanout(registry, &memLog{})

	out, err := fanout.SendTest(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("SendTest() error: %v", err)
	}
	if out.Success {
		t.Error("500 should settle as failure")
	}

	scheduler.Wait()
	if got := hits.Load(); got != 1 {
		t.Errorf("endpoint hit %d times, want 1 (test deliveries never retry)", got)
	}
	if registry.status(sub.ID) != domain.StatusActive {
		t.Error("a failed test delivery must not disable the subscriber")
	}
}

func TestSendTestUnknownSubscriber(t *testing.T) {
	fanout, _ := newTestFanout(newMemRegistry(), &memLog{})

	_, err := fanout.SendTest(context.Background(), "missing")
	if !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("error = %v, want ErrSubscriberNotFound", err)
	}
}
