package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/domain/webhook"
)

type createWebhookRequest struct {
	AgentID string   `json:"agent_id"`
	URL     string   `json:"url"`
	Events  []string `json:"events"`
}

func (h *Handler) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AgentID == "" || req.URL == "" {
		writeError(w, apierr.Validation("agent_id/url", "both are required"))
		return
	}
	owner, err := h.agents.GetAgent(r.Context(), req.AgentID)
	if err != nil {
		writeError(w, apierr.NotFound("agent", req.AgentID))
		return
	}
	if !hashesMatch(apiKeyHashFrom(r.Context()), owner.APIKeyHash) {
		writeError(w, apierr.Forbidden("API key does not own this agent"))
		return
	}

	events := make([]webhook.EventType, 0, len(req.Events))
	for _, e := range req.Events {
		evt := webhook.EventType(e)
		if !webhook.ValidEventTypes[evt] {
			writeError(w, apierr.Validation("events", "unknown event type: "+e))
			return
		}
		events = append(events, evt)
	}
	if len(events) == 0 {
		writeError(w, apierr.Validation("events", "at least one event type is required"))
		return
	}

	secret, err := generateWebhookSecret()
	if err != nil {
		writeError(w, apierr.Wrap(apierr.CodeConfig, "generate webhook secret", err))
		return
	}

	created, err := h.webhooks.CreateWebhook(r.Context(), webhook.Webhook{
		AgentID:  req.AgentID,
		URL:      req.URL,
		Secret:   secret,
		Events:   events,
		IsActive: true,
	})
	if err != nil {
		writeError(w, apierr.Storage("create webhook", err))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func generateWebhookSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// handleListWebhooks lists every webhook owned by the agent named in the
// path (`GET /webhooks/{id}`, where {id} is the owning agent's ID).
func (h *Handler) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	hooks, err := h.webhooks.ListWebhooks(r.Context(), agentID)
	if err != nil {
		writeError(w, apierr.Storage("list webhooks", err))
		return
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (h *Handler) loadOwnedWebhook(r *http.Request) (webhook.Webhook, error) {
	vars := mux.Vars(r)
	wh, err := h.webhooks.GetWebhook(r.Context(), vars["wh"])
	if err != nil {
		return webhook.Webhook{}, apierr.NotFound("webhook", vars["wh"])
	}
	if wh.AgentID != vars["id"] {
		return webhook.Webhook{}, apierr.NotFound("webhook", vars["wh"])
	}
	owner, err := h.agents.GetAgent(r.Context(), wh.AgentID)
	if err != nil {
		return webhook.Webhook{}, apierr.NotFound("agent", wh.AgentID)
	}
	if !hashesMatch(apiKeyHashFrom(r.Context()), owner.APIKeyHash) {
		return webhook.Webhook{}, apierr.Forbidden("API key does not own this webhook")
	}
	return wh, nil
}

type patchWebhookRequest struct {
	URL      *string  `json:"url,omitempty"`
	Events   []string `json:"events,omitempty"`
	IsActive *bool    `json:"is_active,omitempty"`
}

func (h *Handler) handlePatchWebhook(w http.ResponseWriter, r *http.Request) {
	wh, err := h.loadOwnedWebhook(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req patchWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL != nil {
		wh.URL = *req.URL
	}
	if req.Events != nil {
		events := make([]webhook.EventType, 0, len(req.Events))
		for _, e := range req.Events {
			evt := webhook.EventType(e)
			if !webhook.ValidEventTypes[evt] {
				writeError(w, apierr.Validation("events", "unknown event type: "+e))
				return
			}
			events = append(events, evt)
		}
		wh.Events = events
	}
	if req.IsActive != nil {
		wh.IsActive = *req.IsActive
	}

	updated, err := h.webhooks.UpdateWebhook(r.Context(), wh)
	if err != nil {
		writeError(w, apierr.Storage("update webhook", err))
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	wh, err := h.loadOwnedWebhook(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.webhooks.DeleteWebhook(r.Context(), wh.ID); err != nil {
		writeError(w, apierr.Storage("delete webhook", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
