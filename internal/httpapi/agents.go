package httpapi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
)

type registerAgentRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Framework   string            `json:"framework,omitempty"`
	Category    string            `json:"category"`
	Permissions []string          `json:"permissions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	IsSandbox   bool              `json:"is_sandbox,omitempty"`
}

type registerAgentResponse struct {
	AgentID     string `json:"agent_id"`
	SovereignID string `json:"sovereign_id"`
	APIKey      string `json:"api_key"` // shown once, never persisted in clear text
}

// handleRegisterAgent creates a new agent. The API key is generated
// server-side and returned exactly once; only its SHA-256 hash is
// persisted.
func (h *Handler) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if !decodeJSON(w, r, &req) {
		return
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

func (h *Handler) registerAgent(r *http.Request, req registerAgentRequest) (agent.Agent, string, error) {
	if req.Name == "" {
		return agent.Agent{}, "", apierr.Validation("name", "is required")
	}
	if !agent.ValidCategories[agent.Category(req.Category)] {
		return agent.Agent{}, "", apierr.Validation("category", "must be a known category")
	}

	id := uuid.NewString()
	apiKey, keyHash, err := generateAPIKey()
	if err != nil {
		return agent.Agent{}, "", apierr.Wrap(apierr.CodeConfig, "generate API key", err)
	}

	a := agent.NewDefault(id, req.Name, agent.Category(req.Category))
	a.Description = req.Description
	a.Framework = req.Framework
	a.Permissions = req.Permissions
	a.Metadata = req.Metadata
	a.IsSandbox = req.IsSandbox
	a.APIKeyHash = keyHash

	created, err := h.agents.CreateAgent(r.Context(), a)
	if err != nil {
		return agent.Agent{}, "", apierr.Storage("create agent", err)
	}
	return created, apiKey, nil
}

func generateAPIKey() (key, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	key = hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(key))
	hash = hex.EncodeToString(sum[:])
	return key, hash, nil
}

func (h *Handler) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.requireOwnedAgent(r, id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.agents.DeleteAgent(r.Context(), id); err != nil {
		writeError(w, apierr.Storage("delete agent", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAnonymizeAgent strips personally-identifying fields while
// preserving the reputation trail: name replaced by an "anonymized-"
// placeholder, description/framework/metadata cleared, sovereign_id and
// trust history retained.
func (h *Handler) handleAnonymizeAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := h.requireOwnedAgentLoaded(r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	a.Name = "anonymized-" + a.ID[:8]
	a.Description = ""
	a.Framework = ""
	a.Metadata = nil

	updated, err := h.agents.UpdateAgent(r.Context(), a)
	if err != nil {
		writeError(w, apierr.Storage("anonymize agent", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agent_id": updated.ID, "status": "anonymized"})
}

// requireOwnedAgent verifies the caller's API-key hash matches the named
// agent's api_key_hash before allowing a mutating operation on it.
func (h *Handler) requireOwnedAgent(r *http.Request, agentID string) error {
	_, err := h.requireOwnedAgentLoaded(r, agentID)
	return err
}

func (h *Handler) requireOwnedAgentLoaded(r *http.Request, agentID string) (agent.Agent, error) {
	a, err := h.agents.GetAgent(r.Context(), agentID)
	if err != nil {
		return agent.Agent{}, apierr.NotFound("agent", agentID)
	}
	if !hashesMatch(apiKeyHashFrom(r.Context()), a.APIKeyHash) {
		return agent.Agent{}, apierr.Forbidden("API key does not own this agent")
	}
	return a, nil
}

type agentResponse struct {
	AgentID          string            `json:"agent_id"`
	SovereignID      string            `json:"sovereign_id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	Framework        string            `json:"framework,omitempty"`
	Category         string            `json:"category"`
	TrustScore       float64           `json:"trust_score"`
	Tier             string            `json:"tier"`
	Dimensions       agent.Dimensions  `json:"dimensions"`
	TotalTraces      int               `json:"total_traces"`
	EndorsementScore float64           `json:"endorsement_score"`
	IsSandbox        bool              `json:"is_sandbox"`
}

func toAgentResponse(a agent.Agent) agentResponse {
	return agentResponse{
		AgentID:          a.ID,
		SovereignID:      a.SovereignID,
		Name:             a.Name,
		Description:      a.Description,
		Framework:        a.Framework,
		Category:         string(a.Category),
		TrustScore:       a.TrustScore,
		Tier:             string(a.Tier),
		Dimensions:       a.Dimensions,
		TotalTraces:      a.TotalTraces,
		EndorsementScore: a.EndorsementScore,
		IsSandbox:        a.IsSandbox,
	}
}

func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := h.agents.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, apierr.NotFound("agent", id))
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(a))
}

// agentDetailResponse is the verbose projection, including anomalies,
// permissions, and activity timestamps, for operator-facing views.
type agentDetailResponse struct {
	agentResponse
	Permissions          []string             `json:"permissions,omitempty"`
	Metadata             map[string]string    `json:"metadata,omitempty"`
	SuccessRate          float64              `json:"success_rate"`
	ConsecutiveSuccesses int                  `json:"consecutive_successes"`
	AvgDurationMs        float64              `json:"avg_duration_ms"`
	TotalCostUSD         float64              `json:"total_cost_usd"`
	ActiveAnomalies      []agent.AnomalyFlag  `json:"active_anomalies,omitempty"`
}

func (h *Handler) handleGetAgentDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := h.agents.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, apierr.NotFound("agent", id))
		return
	}
	writeJSON(w, http.StatusOK, agentDetailResponse{
		agentResponse:        toAgentResponse(a),
		Permissions:          a.Permissions,
		Metadata:             a.Metadata,
		SuccessRate:          a.SuccessRate,
		ConsecutiveSuccesses: a.ConsecutiveSuccesses,
		AvgDurationMs:        a.AvgDurationMs,
		TotalCostUSD:         a.TotalCostUSD,
		ActiveAnomalies:      a.ActiveAnomalies(),
	})
}

const defaultHistoryLimit = 50

func (h *Handler) handleGetAgentHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.agents.GetAgent(r.Context(), id); err != nil {
		writeError(w, apierr.NotFound("agent", id))
		return
	}
	entries, err := h.history.ListHistory(r.Context(), id, defaultHistoryLimit)
	if err != nil {
		writeError(w, apierr.Storage("list history", err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// agentCardResponse is the per-agent discovery card served at the
// `.../card` route: a condensed, shareable summary of an agent's
// standing, distinct from the well-known process-level discovery
// document served at /.well-known/agent-card.json.
type agentCardResponse struct {
	AgentID     string  `json:"agent_id"`
	SovereignID string  `json:"sovereign_id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	TrustScore  float64 `json:"trust_score"`
	Tier        string  `json:"tier"`
	Verified    bool    `json:"verified"`
}

func (h *Handler) handleGetAgentCard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := h.agents.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, apierr.NotFound("agent", id))
		return
	}
	writeJSON(w, http.StatusOK, agentCardResponse{
		AgentID:     a.ID,
		SovereignID: a.SovereignID,
		Name:        a.Name,
		Category:    string(a.Category),
		TrustScore:  a.TrustScore,
		Tier:        string(a.Tier),
		Verified:    a.Verified(),
	})
}

func (h *Handler) handleGetAgentCompliance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, err := h.compliance.Report(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
