package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garl-network/trust-ledger/internal/apierr"
)

type endorseRequest struct {
	EndorserID string `json:"endorser_id"`
	TargetID   string `json:"target_id"`
	Context    string `json:"context,omitempty"`
}

func (h *Handler) handleEndorse(w http.ResponseWriter, r *http.Request) {
	var req endorseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EndorserID == "" || req.TargetID == "" {
		writeError(w, apierr.Validation("endorser_id/target_id", "both are required"))
		return
	}

	endorser, err := h.agents.GetAgent(r.Context(), req.EndorserID)
	if err != nil {
		writeError(w, apierr.NotFound("agent", req.EndorserID))
		return
	}
	if !hashesMatch(apiKeyHashFrom(r.Context()), endorser.APIKeyHash) {
		writeError(w, apierr.Forbidden("API key does not own the endorsing agent"))
		return
	}

	edge, err := h.endorse.Endorse(r.Context(), req.EndorserID, req.TargetID, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

// handleListEndorsements lists the endorsements an agent has received.
// The route is singular ("endorsements/{id}") without distinguishing
// direction -- received is the natural default for a reputation lookup,
// with endorsements given already exposed through the compliance report.
func (h *Handler) handleListEndorsements(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.agents.GetAgent(r.Context(), id); err != nil {
		writeError(w, apierr.NotFound("agent", id))
		return
	}
	edges, err := h.edges.ListEndorsementsFor(r.Context(), id)
	if err != nil {
		writeError(w, apierr.Storage("list endorsements", err))
		return
	}
	writeJSON(w, http.StatusOK, edges)
}
