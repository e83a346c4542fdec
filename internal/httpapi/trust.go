package httpapi

import (
	"net/http"
	"strconv"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
)

func (h *Handler) handleTrustVerify(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, apierr.Validation("agent_id", "is required"))
		return
	}
	verdict, err := h.verdicts.Verdict(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

const defaultRouteLimit = 10

func (h *Handler) handleTrustRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := agent.Category(q.Get("category"))
	if !agent.ValidCategories[category] {
		writeError(w, apierr.Validation("category", "must be a known category"))
		return
	}

	minTier := agent.TierBronze
	if raw := q.Get("min_tier"); raw != "" {
		minTier = agent.Tier(raw)
	}

	limit := defaultRouteLimit
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	candidates, err := h.verdicts.Route(r.Context(), category, minTier, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]agentResponse, 0, len(candidates))
	for _, a := range candidates {
		out = append(out, toAgentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"candidates": out})
}
