package chi

import (
	"encoding/json"
	"net/http"

	"github.com/fleetgrid/webhooks/events"
	"github.com/fleetgrid/webhooks/webhook"
)

// eventRequest represents an event occurrence posted by a domain module
type eventRequest struct {
	TenantID string          `json:"tenant_id"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// eventResponse acknowledges routing; created may be zero when no
// endpoint subscribes, which is not an error
type eventResponse struct {
	DeliveryIDs []string `json:"delivery_ids"`
}

// eventTypeResponse represents a catalog entry
type eventTypeResponse struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// postEvent handles POST /v1/events
func postEvent(router *webhook.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.TenantID == "" {
			http.Error(w, "tenant_id is required", http.StatusBadRequest)
			return
		}

		ids, err := router.Route(r.Context(), req.TenantID, req.Type, req.Data)
		if err != nil {
			writeError(w, err)
			return
		}

		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusAccepted, eventResponse{DeliveryIDs: ids})
	})
}

// getEventTypes handles GET /v1/events
func getEventTypes(catalog *events.Catalog) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		types := catalog.List()

		responses := make([]eventTypeResponse, 0, len(types))
		for _, t := range types {
			description, _ := catalog.Description(t)
			responses = append(responses, eventTypeResponse{Type: t, Description: description})
		}
		writeJSON(w, http.StatusOK, responses)
	})
}
