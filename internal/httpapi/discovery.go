package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/garl-network/trust-ledger/internal/apierr"
	"github.com/garl-network/trust-ledger/internal/domain/agent"
)

const defaultListLimit = 25

// rankedAgents lists every non-deleted, non-sandbox agent, optionally
// filtered by category, sorted by trust_score descending then
// total_traces descending -- sandboxed agents stay out of every public
// ranking surface, the same exclusion verdict.Service.Route applies.
func (h *Handler) rankedAgents(r *http.Request, category agent.Category) ([]agent.Agent, error) {
	all, err := h.agents.ListAgents(r.Context(), category, false)
	if err != nil {
		return nil, apierr.Storage("list agents", err)
	}
	out := make([]agent.Agent, 0, len(all))
	for _, a := range all {
		if a.IsSandbox {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrustScore != out[j].TrustScore {
			return out[i].TrustScore > out[j].TrustScore
		}
		return out[i].TotalTraces > out[j].TotalTraces
	})
	return out, nil
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	category := agent.Category(r.URL.Query().Get("category"))
	if category != "" && !agent.ValidCategories[category] {
		writeError(w, apierr.Validation("category", "must be a known category"))
		return
	}
	ranked, err := h.rankedAgents(r, category)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := parseLimit(r, defaultListLimit)
	if limit < len(ranked) {
		ranked = ranked[:limit]
	}
	out := make([]agentResponse, 0, len(ranked))
	for _, a := range ranked {
		out = append(out, toAgentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": out})
}

// handleSearch matches the query substring case-insensitively against the
// agent's name and description, and optionally filters by category.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	category := agent.Category(r.URL.Query().Get("category"))
	if category != "" && !agent.ValidCategories[category] {
		writeError(w, apierr.Validation("category", "must be a known category"))
		return
	}
	ranked, err := h.rankedAgents(r, category)
	if err != nil {
		writeError(w, err)
		return
	}

	matches := make([]agentResponse, 0, len(ranked))
	for _, a := range ranked {
		if q != "" && !strings.Contains(strings.ToLower(a.Name), q) && !strings.Contains(strings.ToLower(a.Description), q) {
			continue
		}
		matches = append(matches, toAgentResponse(a))
	}
	limit := parseLimit(r, defaultListLimit)
	if limit < len(matches) {
		matches = matches[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": matches})
}

// handleCompare returns the full projection for every agent ID in the
// comma-separated `ids` query parameter, preserving the requested order;
// unknown IDs are silently skipped rather than failing the whole request.
func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, apierr.Validation("ids", "is required, comma-separated"))
		return
	}
	ids := strings.Split(raw, ",")

	out := make([]agentDetailResponse, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		a, err := h.agents.GetAgent(r.Context(), id)
		if err != nil {
			continue
		}
		out = append(out, agentDetailResponse{
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
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": out})
}

const defaultFeedLimit = 50

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultFeedLimit)
	entries, err := h.history.ListRecentHistory(r.Context(), limit)
	if err != nil {
		writeError(w, apierr.Storage("list recent history", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}

type statsResponse struct {
	TotalAgents     int     `json:"total_agents"`
	VerifiedAgents  int     `json:"verified_agents"`
	AverageScore    float64 `json:"average_trust_score"`
	TierCounts      map[string]int `json:"tier_counts"`
	CategoryCounts  map[string]int `json:"category_counts"`
}

// handleStats aggregates over the whole (non-sandbox) population, for a
// dashboard-style snapshot of network health.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.rankedAgents(r, "")
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statsResponse{
		TierCounts:     map[string]int{},
		CategoryCounts: map[string]int{},
	}
	var scoreSum float64
	for _, a := range ranked {
		resp.TotalAgents++
		scoreSum += a.TrustScore
		if a.Verified() {
			resp.VerifiedAgents++
		}
		resp.TierCounts[string(a.Tier)]++
		resp.CategoryCounts[string(a.Category)]++
	}
	if resp.TotalAgents > 0 {
		resp.AverageScore = scoreSum / float64(resp.TotalAgents)
	}
	writeJSON(w, http.StatusOK, resp)
}

type badgeResponse struct {
	AgentID    string  `json:"agent_id"`
	Tier       string  `json:"tier"`
	TrustScore float64 `json:"trust_score"`
	Verified   bool    `json:"verified"`
}

func (h *Handler) handleBadge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := h.agents.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, apierr.NotFound("agent", id))
		return
	}
	writeJSON(w, http.StatusOK, badgeResponse{
		AgentID:    a.ID,
		Tier:       string(a.Tier),
		TrustScore: a.TrustScore,
		Verified:   a.Verified(),
	})
}

var tierColor = map[agent.Tier]string{
	agent.TierBronze:     "#a96c3a",
	agent.TierSilver:     "#9fa5ab",
	agent.TierGold:       "#d4af37",
	agent.TierEnterprise: "#2563eb",
}

// handleBadgeSVG renders a minimal, deterministic badge: tier colored
// background, trust score text. No external rendering dependency --
// this is plain string formatting, not a graphics pipeline.
func (h *Handler) handleBadgeSVG(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := h.agents.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, apierr.NotFound("agent", id))
		return
	}
	color := tierColor[a.Tier]
	if color == "" {
		color = "#6b7280"
	}
	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="160" height="28">`+
			`<rect width="160" height="28" rx="4" fill="%s"/>`+
			`<text x="8" y="18" font-family="sans-serif" font-size="12" fill="#ffffff">%s · %.1f</text>`+
			`</svg>`,
		color, strings.ToUpper(string(a.Tier)), a.TrustScore,
	)
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(svg))
}
