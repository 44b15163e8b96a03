package api

import (
	"encoding/json"
	"net/http"

	"github.com/voltfleet/webhook-dispatcher/internal/dispatch"
)

type EventHandler struct {
	fanout *dispatch.Fanout
}

func NewEventHandler(f *dispatch.Fanout) *EventHandler {
	return &EventHandler{fanout: f}
}

type triggerEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	TenantID  *string         `json:"tenant_id,omitempty"`
}

// Trigger fans an event out to all eligible subscribers. The response counts
// only first attempts; retries run in the background and show up in the
// delivery log.
func (h *EventHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}
	if !json.Valid(req.Payload) {
		respondError(w, http.StatusBadRequest, "payload must be valid JSON")
		return
	}

	summary, err := h.fanout.Trigger(r.Context(), req.EventType, req.Payload, req.TenantID)
	if err != nil {
		// The only hard failure: subscribers could not be resolved, so no
		// delivery was attempted at all.
		respondError(w, http.StatusInternalServerError, "failed to resolve subscribers")
		return
	}

	respondJSON(w, http.StatusAccepted, summary)
}
