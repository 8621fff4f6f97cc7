// internal/push/api.go
package push

import (
	"encoding/json"
	"net/http"

	"autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/models"
)

// API exposes the subscription endpoints browsers talk to. Authentication is
// delegated to the fronting gateway, which injects the caller identity via
// X-User-Id and X-Organization-Id headers.
type API struct {
	registry       *Registry
	vapidPublicKey string
	logger         logger.Logger
}

func NewAPI(registry *Registry, vapidPublicKey string, log logger.Logger) *API {
	return &API{
		registry:       registry,
		vapidPublicKey: vapidPublicKey,
		logger:         log,
	}
}

func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/push/subscribe", a.handleSubscribe)
	mux.HandleFunc("/push/unsubscribe", a.handleUnsubscribe)
	mux.HandleFunc("/push/public-key", a.handlePublicKey)
	return mux
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	Device struct {
		UserAgent string `json:"userAgent"`
		Platform  string `json:"platform"`
	} `json:"device"`
}

func (a *API) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := r.Header.Get("X-User-Id")
	orgID := r.Header.Get("X-Organization-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sub := &models.PushSubscription{
		UserID:         userID,
		OrganizationID: orgID,
		Endpoint:       req.Endpoint,
		Keys: models.SubscriptionKeys{
			P256dh: req.Keys.P256dh,
			Auth:   req.Keys.Auth,
		},
		Device: models.DeviceInfo{
			UserAgent: req.Device.UserAgent,
			Platform:  req.Device.Platform,
		},
	}

	if err := a.registry.Subscribe(r.Context(), sub); err != nil {
		if de, ok := err.(*errors.DeliveryError); ok && de.Code == errors.ErrCodeInvalidPayload {
			writeError(w, http.StatusBadRequest, de.Details)
			return
		}
		a.logger.Error("Subscribe failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "subscription failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (a *API) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := a.registry.Unsubscribe(r.Context(), req.Endpoint, userID); err != nil {
		if de, ok := err.(*errors.DeliveryError); ok && de.Code == errors.ErrCodeUnauthorized {
			writeError(w, http.StatusForbidden, de.Details)
			return
		}
		a.logger.Error("Unsubscribe failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "unsubscribe failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

// handlePublicKey returns the VAPID public key browsers need to create a
// subscription.
func (a *API) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": a.vapidPublicKey})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
