package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fleetgrid/webhooks/webhook"
	"github.com/go-chi/chi/v5"
)

/* HTTP layer DTOs for the management API
 * Separate from domain entities to avoid leaking internal structure
 */

// endpointRequest represents an endpoint create/update body
type endpointRequest struct {
	TenantID    string   `json:"tenant_id"`
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Active      *bool    `json:"active"`
	Description string   `json:"description"`
	// Secret is optional at creation; one is generated when absent
	Secret string `json:"secret"`
}

// endpointResponse represents an endpoint in the API. It never carries
// the signing secret.
type endpointResponse struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	URL         string    `json:"url"`
	Events      []string  `json:"events"`
	Active      bool      `json:"active"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// createEndpointResponse carries the secret exactly once, at creation
type createEndpointResponse struct {
	endpointResponse
	Secret string `json:"secret"`
}

func toEndpointResponse(e webhook.Endpoint) endpointResponse {
	return endpointResponse{
		ID:          e.ID,
		TenantID:    e.TenantID,
		URL:         e.URL,
		Events:      e.Events,
		Active:      e.Active,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}

// postEndpoint handles POST /v1/endpoints
func postEndpoint(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req endpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}

		e, secret, err := service.CreateEndpoint(r.Context(), webhook.Endpoint{
			TenantID:    req.TenantID,
			URL:         req.URL,
			Events:      req.Events,
			Active:      active,
			Description: req.Description,
		}, req.Secret)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, createEndpointResponse{
			endpointResponse: toEndpointResponse(e),
			Secret:           secret,
		})
	})
}

// getEndpoints handles GET /v1/endpoints?tenant_id=...
func getEndpoints(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			http.Error(w, "tenant_id is required", http.StatusBadRequest)
			return
		}

		eps, err := service.ListEndpoints(r.Context(), tenantID)
		if err != nil {
			writeError(w, err)
			return
		}

		responses := make([]endpointResponse, 0, len(eps))
		for _, e := range eps {
			responses = append(responses, toEndpointResponse(e))
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// getEndpoint handles GET /v1/endpoints/{id}
func getEndpoint(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e, err := service.GetEndpoint(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEndpointResponse(e))
	})
}

// putEndpoint handles PUT /v1/endpoints/{id}
func putEndpoint(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req endpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}

		e, err := service.UpdateEndpoint(r.Context(), webhook.Endpoint{
			ID:          chi.URLParam(r, "id"),
			URL:         req.URL,
			Events:      req.Events,
			Active:      active,
			Description: req.Description,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEndpointResponse(e))
	})
}

// deleteEndpoint handles DELETE /v1/endpoints/{id}
func deleteEndpoint(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := service.DeleteEndpoint(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// --- shared helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError maps domain sentinel errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, webhook.ErrEndpointNotFound), errors.Is(err, webhook.ErrDeliveryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, webhook.ErrNotRetryable), errors.Is(err, webhook.ErrEndpointInactive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, webhook.ErrUnknownEventType),
		errors.Is(err, webhook.ErrInvalidEndpoint),
		errors.Is(err, webhook.ErrInvalidSecret),
		errors.Is(err, webhook.ErrInvalidPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
