package httpapi

import (
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
)

// handleAutoRegisterAgent registers an agent from a raw agent-card
// document (the A2A discovery format other frameworks already emit)
// instead of the strict registerAgentRequest body -- the card's shape
// varies across frameworks, so fields are pulled out tolerantly with
// gjson rather than requiring an exact struct match.
func (h *Handler) handleAutoRegisterAgent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, apierr.Validation("body", "could not read request body"))
		return
	}
	if !gjson.ValidBytes(body) {
		writeError(w, apierr.Validation("body", "not valid JSON"))
		return
	}
	doc := gjson.ParseBytes(body)

	name := firstNonEmpty(doc.Get("name").String(), doc.Get("agent_name").String(), doc.Get("displayName").String())
	if name == "" {
		writeError(w, apierr.Validation("name", "could not be found in the agent card (checked name, agent_name, displayName)"))
		return
	}
	category := firstNonEmpty(doc.Get("category").String(), doc.Get("skills.0.category").String(), string(agent.CategoryOther))
	if !agent.ValidCategories[agent.Category(category)] {
		category = string(agent.CategoryOther)
	}

	req := registerAgentRequest{
		Name:        name,
		Description: firstNonEmpty(doc.Get("description").String(), doc.Get("summary").String()),
		Framework:   firstNonEmpty(doc.Get("framework").String(), doc.Get("provider.name").String()),
		Category:    category,
		IsSandbox:   doc.Get("sandbox").Bool(),
	}
	for _, p := range doc.Get("permissions").Array() {
		req.Permissions = append(req.Permissions, p.String())
	}

	a, apiKey, err := h.registerAgent(r, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerAgentResponse{
		AgentID:     a.ID,
		SovereignID: a.SovereignID,
		APIKey:      apiKey,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
