package chi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fleetgrid/webhooks/webhook"
	"github.com/go-chi/chi/v5"
)

// deliveryResponse represents a delivery record in the API
type deliveryResponse struct {
	ID           string     `json:"id"`
	EndpointID   string     `json:"endpoint_id"`
	EventType    string     `json:"event_type"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	ResponseCode *int       `json:"response_code,omitempty"`
	Test         bool       `json:"test"`
	CreatedAt    time.Time  `json:"created_at"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
}

// testDeliveryResponse is returned by the manual test trigger
type testDeliveryResponse struct {
	DeliveryID string `json:"delivery_id"`
}

func toDeliveryResponse(d webhook.Delivery) deliveryResponse {
	return deliveryResponse{
		ID:           d.ID,
		EndpointID:   d.EndpointID,
		EventType:    d.EventType,
		Status:       d.Status.String(),
		Attempts:     d.Attempts,
		MaxAttempts:  d.MaxAttempts,
		ResponseCode: d.ResponseCode,
		Test:         d.Test,
		CreatedAt:    d.CreatedAt,
		NextRetryAt:  d.NextRetryAt,
	}
}

// getDeliveries handles GET /v1/endpoints/{id}/deliveries?limit=&offset=
func getDeliveries(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		ds, err := service.ListDeliveries(r.Context(), chi.URLParam(r, "id"), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}

		responses := make([]deliveryResponse, 0, len(ds))
		for _, d := range ds {
			responses = append(responses, toDeliveryResponse(d))
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// postTestDelivery handles POST /v1/endpoints/{id}/test
func postTestDelivery(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := service.SendTest(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, testDeliveryResponse{DeliveryID: deliveryID})
	})
}

// postRetryDelivery handles POST /v1/deliveries/{id}/retry
func postRetryDelivery(service webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := service.RetryDelivery(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}
