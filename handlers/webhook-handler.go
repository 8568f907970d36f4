package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/services"
)

// WebhookHandler receives directory events from the identity provider.
type WebhookHandler struct {
	Service *services.UserService
	Secret  string
}

func NewWebhookHandler(service *services.UserService, secret string) *WebhookHandler {
	return &WebhookHandler{Service: service, Secret: secret}
}

func (h *WebhookHandler) Identity(w http.ResponseWriter, r *http.Request) {
	given := r.Header.Get("X-Webhook-Secret")
	if h.Secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.Secret)) != 1 {
		logging.Logger.Warnf("Event ID: WEBHOOK_REJECTED, Description: Identity webhook with a bad secret from %s", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid webhook secret"})
		return
	}

	var ev models.IdentityEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Service.Sync(r.Context(), ev); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "event processed")
}
