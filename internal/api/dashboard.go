package api

import (
	"net/http"

	"github.com/voltfleet/webhook-dispatcher/internal/store"
	ws "github.com/voltfleet/webhook-dispatcher/internal/websocket"
)

type DashboardHandler struct {
	store *store.PostgresStore
	hub   *ws.Hub
}

func NewDashboardHandler(s *store.PostgresStore, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{store: s, hub: hub}
}

// Stats returns aggregated delivery statistics for the dashboard.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetDeliveryStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get delivery stats")
		return
	}

	type statsResponse struct {
		store.DeliveryStats
		WebSocketClients int `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, statsResponse{
		DeliveryStats:    *stats,
		WebSocketClients: h.hub.ClientCount(),
	})
}
