package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voltfleet/webhook-dispatcher/internal/dispatch"
	"github.com/voltfleet/webhook-dispatcher/internal/domain"
	"github.com/voltfleet/webhook-dispatcher/internal/store"
)

// SubscriberDefaults are applied when a create request omits retry policy
// fields.
type SubscriberDefaults struct {
	MaxAttempts int
	BaseDelayMs int
}

type SubscriberHandler struct {
	store    *store.PostgresStore
	fanout   *dispatch.Fanout
	defaults SubscriberDefaults
}

func NewSubscriberHandler(s *store.PostgresStore, f *dispatch.Fanout, defaults SubscriberDefaults) *SubscriberHandler {
	return &SubscriberHandler{store: s, fanout: f, defaults: defaults}
}

func (h *SubscriberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.EndpointURL == "" {
		respondError(w, http.StatusBadRequest, "endpoint_url is required")
		return
	}
	if len(req.EventTypes) == 0 {
		respondError(w, http.StatusBadRequest, "at least one event_type is required")
		return
	}

	if req.MaxAttempts <= 0 {
		req.MaxAttempts = h.defaults.MaxAttempts
	}
	if req.BaseDelayMs <= 0 {
		req.BaseDelayMs = h.defaults.BaseDelayMs
	}

	sub, err := h.store.CreateSubscriber(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create subscriber")
		return
	}

	// The generated secret is returned exactly once, at creation.
	respondJSON(w, http.StatusCreated, domain.CreateSubscriberResponse{
		ID:     sub.ID,
		Name:   sub.Name,
		Secret: sub.Secret,
	})
}

func (h *SubscriberHandler) List(w http.ResponseWriter, r *http.Request) {
	subscribers, err := h.store.ListSubscribers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscribers")
		return
	}

	for i := range subscribers {
		subscribers[i].Secret = ""
	}

	respondJSON(w, http.StatusOK, subscribers)
}

func (h *SubscriberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.store.GetSubscriber(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscriber")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscriber not found")
		return
	}

	sub.Secret = ""
	respondJSON(w, http.StatusOK, sub)
}

// Update patches subscriber fields. Setting status back to active is the
// administrative reactivation path for endpoints disabled by retry
// exhaustion.
func (h *SubscriberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req domain.UpdateSubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Status != nil && *req.Status != domain.StatusActive && *req.Status != domain.StatusDisabled {
		respondError(w, http.StatusBadRequest, "status must be active or disabled")
		return
	}

	sub, err := h.store.UpdateSubscriber(r.Context(), id, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update subscriber")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscriber not found")
		return
	}

	sub.Secret = ""
	respondJSON(w, http.StatusOK, sub)
}

// Test sends a single synthetic delivery to the subscriber, bypassing
// subscription filtering, and returns the settled outcome.
func (h *SubscriberHandler) Test(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	outcome, err := h.fanout.SendTest(r.Context(), id)
	if err != nil {
		if errors.Is(err, dispatch.ErrSubscriberNotFound) {
			respondError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to send test delivery")
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}

// Deliveries returns the subscriber's recent delivery log, newest first.
func (h *SubscriberHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	attempts, err := h.store.ListRecent(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	respondJSON(w, http.StatusOK, attempts)
}
